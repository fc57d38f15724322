package incident

import "strings"

// Severity is an ordered scale; higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// MarshalText encodes the severity as its lowercase name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the lowercase names plus P1 aliases for critical.
func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// ParseSeverity maps a severity label to the scale. Unrecognized labels parse
// as medium rather than failing; severity is advisory, not load-bearing.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical", "p1", "1":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// InferSeverity maps a metric name and value onto the severity scale. The
// mapping is fixed and monotone in value; it drives both the incident
// severity and whether remediation needs human approval.
func InferSeverity(metric string, value float64) Severity {
	m := strings.ToLower(metric)
	switch {
	case m == "up":
		if value == 0 {
			return SeverityCritical
		}
		return SeverityLow
	case strings.Contains(m, "error"):
		switch {
		case value >= 0.20:
			return SeverityCritical
		case value >= 0.10:
			return SeverityHigh
		case value >= 0.05:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case strings.Contains(m, "latency") || strings.HasSuffix(m, "_ms"):
		switch {
		case value >= 3000:
			return SeverityCritical
		case value >= 1500:
			return SeverityHigh
		case value >= 800:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case strings.Contains(m, "percent") || strings.Contains(m, "rate"):
		switch {
		case value >= 95:
			return SeverityCritical
		case value >= 80:
			return SeverityHigh
		case value >= 60:
			return SeverityMedium
		default:
			return SeverityLow
		}
	default:
		return SeverityMedium
	}
}
