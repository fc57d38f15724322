package trace

import "context"

// Store is the persistence interface for trace steps.
type Store interface {
	// Append adds one step row.
	Append(ctx context.Context, step *Step) error

	// Steps returns all steps of a run in step order.
	Steps(ctx context.Context, runID string) ([]Step, error)

	// StepsForIncidents returns the non-started steps logged against any of
	// the given incident IDs, used by the chronicler for doc generation.
	StepsForIncidents(ctx context.Context, incidentIDs []string) ([]Step, error)

	// LastRunForIncident returns the most recent run id that logged a step
	// against the incident, or "" when none exists.
	LastRunForIncident(ctx context.Context, incidentID string) (string, error)

	// MaxStep returns the highest step order logged for a run, 0 when the
	// run has no steps.
	MaxStep(ctx context.Context, runID string) (int, error)

	// StampTicketNumber back-fills the ticket number on every step of a run,
	// preserving all other fields.
	StampTicketNumber(ctx context.Context, runID, ticketNumber string) error
}
