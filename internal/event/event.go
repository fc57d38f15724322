// Package event defines the inbound monitoring event model, its
// normalization, and the phase classification the router dispatches on.
package event

import (
	"strconv"
	"time"
)

// Phase is the pipeline an event routes to.
type Phase string

const (
	PhaseMonitor    Phase = "monitor"
	PhaseTriage     Phase = "triage"
	PhaseChronicler Phase = "chronicler"
)

// Inbound is the raw event envelope posted to /events.
type Inbound struct {
	EventID string         `json:"event_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Monitoring is the normalized event the monitor pipeline consumes.
type Monitoring struct {
	EventID   string            `json:"event_id"`
	Source    string            `json:"source"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Classify maps an event type to its phase. Unrecognized types default to
// monitor so nothing is silently dropped.
func Classify(eventType string) Phase {
	switch eventType {
	case "alert", "metric", "health", "simulated":
		return PhaseMonitor
	case "incident_created":
		return PhaseTriage
	case "incident_closed":
		return PhaseChronicler
	default:
		return PhaseMonitor
	}
}

// Normalize converts a raw payload into a Monitoring event. Missing fields
// become zero values; a malformed value parses as 0 rather than failing,
// matching the collector's pass-through role.
func Normalize(in *Inbound) *Monitoring {
	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	m := &Monitoring{
		EventID: in.EventID,
		Source:  str(payload, "source"),
		Metric:  str(payload, "metric"),
		Value:   num(payload, "value"),
		Unit:    str(payload, "unit"),
		Service: str(payload, "service"),
		Extra:   map[string]string{},
	}
	if m.EventID == "" {
		m.EventID = str(payload, "event_id")
	}
	if m.Source == "" {
		m.Source = "unknown"
	}
	if ts, err := time.Parse(time.RFC3339, str(payload, "timestamp")); err == nil {
		m.Timestamp = ts.UTC()
	} else {
		m.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	if extra, ok := payload["extra"].(map[string]any); ok {
		for k, v := range extra {
			if s, ok := v.(string); ok {
				m.Extra[k] = s
			}
		}
	}
	return m
}

// Summary returns the incident summary for the event: the explicit override
// from extra, else "<metric> <value> <unit>".
func (m *Monitoring) Summary() string {
	if s := m.Extra["summary"]; s != "" {
		return s
	}
	s := m.Metric + " " + strconv.FormatFloat(m.Value, 'g', -1, 64)
	if m.Unit != "" {
		s += " " + m.Unit
	}
	return s
}

func str(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func num(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
