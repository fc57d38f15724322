package rules

import "fmt"

func breachReason(metric string, value float64, op string, threshold float64) string {
	return fmt.Sprintf("%s %s %s %s", metric, trimFloat(value), op, trimFloat(threshold))
}

// trimFloat formats without trailing zeros so rationales read naturally
// (95, 0.25, 1500.5).
func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
