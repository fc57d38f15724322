// Package memstore provides an in-memory implementation of approval.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/argus/internal/approval"
)

// Store holds approval requests in memory. Suitable for dev/testing.
type Store struct {
	mu   sync.Mutex
	rows []approval.Request
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{}
}

// Append adds a new request row.
func (s *Store) Append(_ context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *req)
	return nil
}

// PendingByRequest returns the request iff it exists and is pending.
func (s *Store) PendingByRequest(_ context.Context, requestID string) (*approval.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].RequestID == requestID && s.rows[i].Status == approval.StatusPending {
			cp := s.rows[i]
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// PendingByIncident returns the first pending request for an incident.
func (s *Store) PendingByIncident(_ context.Context, incidentID string) (*approval.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].IncidentID == incidentID && s.rows[i].Status == approval.StatusPending {
			cp := s.rows[i]
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// Decide transitions a pending row to a terminal status.
func (s *Store) Decide(_ context.Context, requestID string, status approval.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].RequestID == requestID && s.rows[i].Status == approval.StatusPending {
			s.rows[i].Status = status
			s.rows[i].DecidedAt = time.Now().UTC().Truncate(time.Second)
			return true, nil
		}
	}
	return false, nil
}
