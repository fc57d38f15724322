package incident

import "strings"

// themeKeywords is ordered: the first keyword found in a summary wins.
var themeKeywords = []string{"cpu", "memory", "error", "latency", "down", "unavailable"}

// ThemeGeneral is the fallback theme when no keyword matches.
const ThemeGeneral = "general"

// Theme derives the coarse fault category from an incident summary. Together
// with the service name it is the correlation grouping key.
func Theme(summary string) string {
	s := strings.ToLower(summary)
	for _, kw := range themeKeywords {
		if strings.Contains(s, kw) {
			if kw == "unavailable" {
				// "down" and "unavailable" describe the same fault
				return "down"
			}
			return kw
		}
	}
	return ThemeGeneral
}
