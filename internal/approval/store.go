package approval

import "context"

// Store is the persistence interface for approval requests. Rows are created
// pending and mutated exactly once to a terminal state; never deleted.
type Store interface {
	// Append adds a new request row.
	Append(ctx context.Context, req *Request) error

	// PendingByRequest returns the request iff it exists and is pending.
	PendingByRequest(ctx context.Context, requestID string) (*Request, bool, error)

	// PendingByIncident returns the first pending request for an incident.
	PendingByIncident(ctx context.Context, incidentID string) (*Request, bool, error)

	// Decide transitions a pending row to the given terminal status, setting
	// the decided timestamp. Returns false when no pending row matches the
	// request id — the idempotence guard against duplicate webhook delivery.
	Decide(ctx context.Context, requestID string, status Status) (bool, error)
}
