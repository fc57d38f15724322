package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Service wraps the Store with the state-machine rules.
type Service struct {
	store  Store
	logger log.Logger
}

// NewService creates an approval service.
func NewService(store Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{store: store, logger: logger}
}

// CreatePending appends a new pending request and returns its id. Callers
// must not call this while a pending request already exists for the incident.
func (s *Service) CreatePending(ctx context.Context, incidentID, actionSuggestion, ticketID, ticketSystem string) (string, error) {
	req := &Request{
		RequestID:        "req_" + ulid.Make().String(),
		IncidentID:       incidentID,
		ActionSuggestion: actionSuggestion,
		ActionType:       ActionRunRunbook,
		TicketID:         ticketID,
		TicketSystem:     ticketSystem,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	if err := s.store.Append(ctx, req); err != nil {
		return "", fmt.Errorf("create pending approval: %w", err)
	}
	s.logger.Info(ctx, "approval requested",
		"request_id", req.RequestID,
		"incident_id", incidentID,
		"action_type", req.ActionType,
	)
	return req.RequestID, nil
}

// Pending resolves a pending request by request id or, failing that, by
// incident id. Terminal rows are invisible here: a decided request reads as
// not found.
func (s *Service) Pending(ctx context.Context, requestID, incidentID string) (*Request, bool, error) {
	if requestID != "" {
		if req, ok, err := s.store.PendingByRequest(ctx, requestID); err != nil || ok {
			return req, ok, err
		}
	}
	if incidentID != "" {
		return s.store.PendingByIncident(ctx, incidentID)
	}
	return nil, false, nil
}

// RecordDecision transitions a pending request to its terminal state.
// Returns false when the request is unknown or already decided; the decided
// timestamp of a terminal row is never altered.
func (s *Service) RecordDecision(ctx context.Context, requestID string, decision Decision) (bool, error) {
	if !decision.Valid() {
		return false, fmt.Errorf("invalid decision %q", decision)
	}
	status := StatusApproved
	if decision == DecisionReject {
		status = StatusRejected
	}
	ok, err := s.store.Decide(ctx, requestID, status)
	if err != nil {
		return false, fmt.Errorf("record decision: %w", err)
	}
	if ok {
		s.logger.Info(ctx, "approval decided", "request_id", requestID, "status", string(status))
	}
	return ok, nil
}
