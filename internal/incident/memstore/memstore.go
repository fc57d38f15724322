// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/argus/internal/incident"
)

// Store holds incident records in memory behind a single mutex, the
// single-writer guard for this record kind. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	rows  map[string]*incident.Incident
	order []string // insertion order, so List is deterministic
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{rows: make(map[string]*incident.Incident)}
}

// List returns copies of every incident in insertion order.
func (s *Store) List(_ context.Context) ([]incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]incident.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rows[id])
	}
	return out, nil
}

// Get retrieves an incident by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Append stores a copy of a new incident.
func (s *Store) Append(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[inc.ID]; !exists {
		s.order = append(s.order, inc.ID)
	}
	cp := *inc
	s.rows[inc.ID] = &cp
	return nil
}

// Put rewrites the full record keyed by inc.ID.
func (s *Store) Put(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[inc.ID]; !exists {
		s.order = append(s.order, inc.ID)
	}
	cp := *inc
	s.rows[inc.ID] = &cp
	return nil
}
