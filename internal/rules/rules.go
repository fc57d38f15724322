// Package rules reads the external rule tables the engine consults: alert
// thresholds, severity-to-priority mappings, maintenance windows, and
// category/assignment routing. Tables are flat CSV files re-read on every
// lookup — the engine never caches them across calls, so edits take effect
// on the next event.
package rules

import (
	"context"
	"time"
)

// ThresholdRule decides whether a metric reading breaches.
type ThresholdRule struct {
	Service   string
	Metric    string
	Operator  string // gt, gte, lt
	Threshold float64
	Enabled   bool
}

// MaintenanceWindow suppresses incident creation for a service while
// Start <= now <= End (UTC).
type MaintenanceWindow struct {
	Service string
	Start   time.Time
	End     time.Time
}

// Route carries the ticket routing fields for a service.
type Route struct {
	Category        string
	AssignmentGroup string
}

// Provider is the read-only boundary to the rule tables.
type Provider interface {
	ThresholdRules(ctx context.Context) ([]ThresholdRule, error)
	MaintenanceWindows(ctx context.Context) ([]MaintenanceWindow, error)

	// PriorityFor maps a severity label to the priority value of the given
	// ticket system, falling back to a sensible default when unmapped.
	PriorityFor(ctx context.Context, severity, system string) (string, error)

	// RouteFor returns category/assignment routing for a service; zero
	// Route when the service has no row.
	RouteFor(ctx context.Context, service string) (Route, error)
}

// Evaluate applies the threshold rules to one reading. It returns breach=true
// with a human-readable reason on the first enabled rule that fires, and
// false when no rule matches.
func Evaluate(ruleSet []ThresholdRule, service, metric string, value float64) (bool, string) {
	for _, r := range ruleSet {
		if !r.Enabled || r.Service != service || r.Metric != metric {
			continue
		}
		switch r.Operator {
		case "gt":
			if value > r.Threshold {
				return true, breachReason(metric, value, ">", r.Threshold)
			}
		case "gte":
			if value >= r.Threshold {
				return true, breachReason(metric, value, ">=", r.Threshold)
			}
		case "lt":
			if value < r.Threshold {
				return true, breachReason(metric, value, "<", r.Threshold)
			}
		}
	}
	return false, ""
}

// InWindow reports whether now falls inside any window for the service.
func InWindow(windows []MaintenanceWindow, service string, now time.Time) bool {
	for _, w := range windows {
		if w.Service != service {
			continue
		}
		if !now.Before(w.Start) && !now.After(w.End) {
			return true
		}
	}
	return false
}
