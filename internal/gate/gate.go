// Package gate decides whether a breaching event becomes an incident:
// maintenance windows and in-run dedup suppress creation; the reopen check
// flags recurrence of a recently closed incident without blocking anything.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/linnemanlabs/argus/internal/incident"
	"github.com/linnemanlabs/argus/internal/rules"
)

// Suppression reasons returned by Decide.
const (
	ReasonMaintenanceWindow = "maintenance_window"
	ReasonDedupe            = "dedupe"
	ReasonCreate            = "create"
)

// ReopenWindow is how far back the reopen check looks for a closed incident
// on the same service/metric.
const ReopenWindow = 24 * time.Hour

// DedupeSet tracks (service, metric) pairs already actioned in the current
// run batch. Not safe for concurrent use; each batch owns its own set.
type DedupeSet map[[2]string]struct{}

// Add marks a pair as actioned.
func (d DedupeSet) Add(service, metric string) {
	d[[2]string{service, metric}] = struct{}{}
}

// Has reports whether the pair was already actioned.
func (d DedupeSet) Has(service, metric string) bool {
	_, ok := d[[2]string{service, metric}]
	return ok
}

// Gate evaluates suppression policy for incident creation.
type Gate struct {
	rules     rules.Provider
	incidents incident.Store
	now       func() time.Time
}

// New creates a Gate. now may be nil for wall-clock time.
func New(provider rules.Provider, incidents incident.Store) *Gate {
	return &Gate{rules: provider, incidents: incidents, now: func() time.Time { return time.Now().UTC() }}
}

// Decide returns (create, reason). Policy order: maintenance window first,
// then in-run dedup, then allow. Pure decision — the only read is the
// maintenance-window table.
func (g *Gate) Decide(ctx context.Context, service, metric string, dedupe DedupeSet) (bool, string, error) {
	windows, err := g.rules.MaintenanceWindows(ctx)
	if err != nil {
		return false, "", err
	}
	if rules.InWindow(windows, service, g.now()) {
		return false, ReasonMaintenanceWindow, nil
	}
	if dedupe != nil && dedupe.Has(service, metric) {
		return false, ReasonDedupe, nil
	}
	return true, ReasonCreate, nil
}

// CheckReopen scans recently closed incidents for the same service whose
// summary mentions the metric. It returns the most recent match, or nil.
// Advisory only: callers log a warning step and proceed with creation.
func (g *Gate) CheckReopen(ctx context.Context, service, metric string) (*incident.Incident, error) {
	all, err := g.incidents.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := g.now().Add(-ReopenWindow)
	metricKW := strings.ToLower(metric)
	var found *incident.Incident
	for i := range all {
		inc := &all[i]
		if !inc.Closed() {
			continue
		}
		if !strings.EqualFold(inc.Service, service) {
			continue
		}
		if !summaryMentions(inc.Summary, metricKW) {
			continue
		}
		if inc.CreatedAt.Before(cutoff) {
			continue
		}
		found = inc // last match wins: the most recently appended row
	}
	return found, nil
}

// summaryMentions matches the whole metric name or any of its underscore
// parts ("error_rate" matches a summary containing just "error").
func summaryMentions(summary, metricKW string) bool {
	s := strings.ToLower(summary)
	if strings.Contains(s, metricKW) {
		return true
	}
	for _, part := range strings.Split(metricKW, "_") {
		if part != "" && strings.Contains(s, part) {
			return true
		}
	}
	return false
}
