// Package trace records the ordered pipeline steps of each run. The trace is
// the engine's audit trail: every stage appends a started row before doing
// work and exactly one terminal row after, with a rationale descriptive
// enough to reconstruct the decision without re-running the pipeline.
package trace

import "time"

// Outcome labels the result of one logged step.
type Outcome string

const (
	OutcomeStarted    Outcome = "started"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeWarning    Outcome = "warning"
	OutcomeCompleted  Outcome = "completed"
)

// Step is one logged stage execution within a run. Identity is the
// (RunID, StepOrder) pair; step orders are monotonically non-decreasing
// within a run. Append-only except the ticket-number back-fill.
type Step struct {
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	IncidentID   string    `json:"incident_id,omitempty"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	StepOrder    int       `json:"step_order"`
	Agent        string    `json:"agent"`
	Action       string    `json:"action"`
	Decision     string    `json:"decision"`
	Rationale    string    `json:"rationale"`
	Outcome      Outcome   `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
}
