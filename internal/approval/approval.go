// Package approval implements the asynchronous human-approval state machine
// gating risky remediation: pending requests transition exactly once to
// approved or rejected, driven by the webhook handler.
package approval

import "time"

// ActionRunRunbook is the single action type the executor knows how to run.
const ActionRunRunbook = "run_runbook"

// Status of an approval request. pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is a webhook caller's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is one the state machine accepts.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Request is one approval request linked to an incident. At most one pending
// request exists per incident at a time; that invariant is a caller contract
// (the solicitor checks before creating), not enforced by the store.
type Request struct {
	RequestID        string    `json:"request_id"`
	IncidentID       string    `json:"incident_id"`
	ActionSuggestion string    `json:"action_suggestion"`
	ActionType       string    `json:"action_type"`
	TicketID         string    `json:"ticket_id,omitempty"`
	TicketSystem     string    `json:"ticket_system,omitempty"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	DecidedAt        time.Time `json:"decided_at,omitempty"`
}
