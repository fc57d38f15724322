package trace

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Run is the explicit run context threaded through a pipeline execution. It
// holds the run id and the next step counter so stages never scan the store
// to find their position. A started row and its terminal row share a step
// order; Finished advances the counter.
type Run struct {
	ID string

	store        Store
	incidentID   string
	ticketNumber string
	step         int
}

// NewRun mints a fresh run for one triggering event.
func NewRun(store Store) *Run {
	return &Run{ID: ulid.Make().String(), store: store, step: 1}
}

// ResumeRun recovers the run associated with an existing incident so that
// later phases (close, cascade, chronicler) append to the same audit trail.
// When the incident has no prior run a fresh one is minted.
func ResumeRun(ctx context.Context, store Store, incidentID string) (*Run, error) {
	runID, err := store.LastRunForIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		r := NewRun(store)
		r.incidentID = incidentID
		return r, nil
	}
	maxStep, err := store.MaxStep(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Run{ID: runID, store: store, incidentID: incidentID, step: maxStep + 1}, nil
}

// BindIncident associates subsequent steps with an incident id. Steps logged
// before an incident exists carry an empty incident id.
func (r *Run) BindIncident(incidentID string) {
	r.incidentID = incidentID
}

// StampTicket back-fills the ticket number onto every step already logged
// for this run and tags all subsequent steps with it.
func (r *Run) StampTicket(ctx context.Context, ticketNumber string) error {
	if ticketNumber == "" {
		return nil
	}
	r.ticketNumber = ticketNumber
	return r.store.StampTicketNumber(ctx, r.ID, ticketNumber)
}

// Started logs the pre-work row for a stage at the current step order.
func (r *Run) Started(ctx context.Context, agent, action, decision, rationale string) error {
	return r.append(ctx, agent, action, decision, rationale, OutcomeStarted, "")
}

// Finished logs the terminal row for a stage and advances the step counter.
// The rationale is the audit trail: it explains why the stage produced its
// result.
func (r *Run) Finished(ctx context.Context, agent, action, decision, rationale string, outcome Outcome, detail string) error {
	err := r.append(ctx, agent, action, decision, rationale, outcome, detail)
	r.step++
	return err
}

func (r *Run) append(ctx context.Context, agent, action, decision, rationale string, outcome Outcome, detail string) error {
	return r.store.Append(ctx, &Step{
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		RunID:        r.ID,
		IncidentID:   r.incidentID,
		TicketNumber: r.ticketNumber,
		StepOrder:    r.step,
		Agent:        agent,
		Action:       action,
		Decision:     decision,
		Rationale:    rationale,
		Outcome:      outcome,
		Detail:       detail,
	})
}
