// Package memstore provides an in-memory implementation of trace.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/argus/internal/trace"
)

// Store holds trace steps in memory. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	steps []trace.Step
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{}
}

// Append adds one step row.
func (s *Store) Append(_ context.Context, step *trace.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, *step)
	return nil
}

// Steps returns all steps of a run in append order.
func (s *Store) Steps(_ context.Context, runID string) ([]trace.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []trace.Step
	for _, st := range s.steps {
		if st.RunID == runID {
			out = append(out, st)
		}
	}
	return out, nil
}

// StepsForIncidents returns non-started steps for the given incident IDs.
func (s *Store) StepsForIncidents(_ context.Context, incidentIDs []string) ([]trace.Step, error) {
	ids := make(map[string]struct{}, len(incidentIDs))
	for _, id := range incidentIDs {
		ids[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []trace.Step
	for _, st := range s.steps {
		if _, ok := ids[st.IncidentID]; ok && st.Outcome != trace.OutcomeStarted {
			out = append(out, st)
		}
	}
	return out, nil
}

// LastRunForIncident returns the most recent run id that touched the incident.
func (s *Store) LastRunForIncident(_ context.Context, incidentID string) (string, error) {
	if incidentID == "" {
		return "", nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := ""
	for _, st := range s.steps {
		if st.IncidentID == incidentID {
			last = st.RunID
		}
	}
	return last, nil
}

// MaxStep returns the highest step order for a run.
func (s *Store) MaxStep(_ context.Context, runID string) (int, error) {
	if runID == "" {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mx := 0
	for _, st := range s.steps {
		if st.RunID == runID && st.StepOrder > mx {
			mx = st.StepOrder
		}
	}
	return mx, nil
}

// StampTicketNumber back-fills the ticket number on all rows of a run.
func (s *Store) StampTicketNumber(_ context.Context, runID, ticketNumber string) error {
	if ticketNumber == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if s.steps[i].RunID == runID {
			s.steps[i].TicketNumber = ticketNumber
		}
	}
	return nil
}
