// Package audit emits the engine's audit entries through the structured
// logger: simple entries (agent, action, entity, outcome) for routine steps
// and comprehensive entries (plus duration, error, payload summary) for
// operations like cascade closes that need a full paper trail.
package audit

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const maxErrorLen = 512

// Auditor writes audit entries. The zero value is unusable; construct with New.
type Auditor struct {
	logger log.Logger
}

// New creates an Auditor writing through the given logger.
func New(logger log.Logger) *Auditor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Auditor{logger: logger.With("channel", "audit")}
}

// Simple records one routine audit entry.
func (a *Auditor) Simple(ctx context.Context, agent, action, entityID, outcome string) {
	a.logger.Info(ctx, "audit",
		"detail_level", "simple",
		"agent", agent,
		"action", action,
		"entity_id", entityID,
		"outcome", outcome,
	)
}

// Comprehensive records a full-detail audit entry. err may be nil; the raw
// message is truncated before logging.
func (a *Auditor) Comprehensive(ctx context.Context, agent, action, entityID, outcome string, duration time.Duration, err error, payloadSummary string) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		if len(errMsg) > maxErrorLen {
			errMsg = errMsg[:maxErrorLen]
		}
	}
	a.logger.Info(ctx, "audit",
		"detail_level", "comprehensive",
		"agent", agent,
		"action", action,
		"entity_id", entityID,
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
		"error", errMsg,
		"payload_summary", payloadSummary,
	)
}
