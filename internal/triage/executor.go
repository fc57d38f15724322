package triage

import (
	"context"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/audit"
)

// ExecResult is the outcome of running an approved action.
type ExecResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Executor runs approved remediation actions. Execution is simulated: the
// single supported action type never touches a real host, it only records
// that the action would have run.
type Executor struct {
	auditor *audit.Auditor
}

// NewExecutor creates an Executor.
func NewExecutor(auditor *audit.Auditor) *Executor {
	if auditor == nil {
		auditor = audit.New(nil)
	}
	return &Executor{auditor: auditor}
}

// Execute runs an approved action for an incident.
func (e *Executor) Execute(ctx context.Context, incidentID, actionType string, params map[string]string) ExecResult {
	if actionType != approval.ActionRunRunbook {
		e.auditor.Simple(ctx, "triage", "executor_run", incidentID, "rejected")
		return ExecResult{Success: false, Message: "unsupported action type: " + actionType}
	}
	e.auditor.Simple(ctx, "triage", "executor_run", incidentID, "simulated")
	return ExecResult{Success: true, Message: "Simulated execution (no real server)."}
}
