package incident

import "context"

// Store is the persistence interface for incident records.
//
// Put rewrites the full row identified by the incident ID. There is no
// row-level locking across concurrent runs: two runs racing on the same
// incident are last-writer-wins. The engine tolerates this because one
// pipeline drives each incident end-to-end; writers must not cache records
// across calls.
type Store interface {
	// List returns every incident record.
	List(ctx context.Context) ([]Incident, error)

	// Get returns the incident by ID, ok=false when absent.
	Get(ctx context.Context, id string) (*Incident, bool, error)

	// Append adds a new incident record.
	Append(ctx context.Context, inc *Incident) error

	// Put rewrites the full record keyed by inc.ID.
	Put(ctx context.Context, inc *Incident) error
}

// ListOpen returns all incidents that are not closed, re-reading the store.
func ListOpen(ctx context.Context, s Store) ([]Incident, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]Incident, 0, len(all))
	for _, inc := range all {
		if !inc.Closed() {
			open = append(open, inc)
		}
	}
	return open, nil
}

// Children returns all incidents linked under the given parent, excluding
// the parent itself.
func Children(ctx context.Context, s Store, parentID string) ([]Incident, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var kids []Incident
	for _, inc := range all {
		if inc.ParentIncidentID == parentID && inc.ID != parentID {
			kids = append(kids, inc)
		}
	}
	return kids, nil
}
