// Package pgstore provides a PostgreSQL implementation of approval.Store.
// Decide is a single conditional UPDATE, so duplicate webhook deliveries
// racing on the same request id cannot both win.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/argus/internal/approval"
)

var tracer = otel.Tracer("github.com/linnemanlabs/argus/internal/approval/pgstore")

//go:embed schema.sql
var schema string

// Store persists approval requests in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const approvalColumns = `request_id, incident_id, action_suggestion, action_type,
	ticket_id, ticket_system, status, created_at, decided_at`

// Append adds a new request row.
func (s *Store) Append(ctx context.Context, req *approval.Request) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	var decidedAt *time.Time
	if !req.DecidedAt.IsZero() {
		decidedAt = &req.DecidedAt
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO approvals (`+approvalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.RequestID, req.IncidentID, req.ActionSuggestion, req.ActionType,
		req.TicketID, req.TicketSystem, string(req.Status), req.CreatedAt, decidedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// PendingByRequest returns the request iff it exists and is pending.
//
//nolint:dupl // similar structure to PendingByIncident is intentional
func (s *Store) PendingByRequest(ctx context.Context, requestID string) (*approval.Request, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.PendingByRequest", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals
		WHERE request_id = $1 AND status = 'pending'`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return req, true, nil
}

// PendingByIncident returns the earliest pending request for an incident.
//
//nolint:dupl // similar structure to PendingByRequest is intentional
func (s *Store) PendingByIncident(ctx context.Context, incidentID string) (*approval.Request, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.PendingByIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals
		WHERE incident_id = $1 AND status = 'pending' ORDER BY created_at LIMIT 1`, incidentID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return req, true, nil
}

// Decide transitions a pending row to a terminal status.
func (s *Store) Decide(ctx context.Context, requestID string, status approval.Status) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Decide", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE approvals
		SET status = $2, decided_at = $3
		WHERE request_id = $1 AND status = 'pending'`,
		requestID, string(status), time.Now().UTC().Truncate(time.Second),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("decide approval: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRequest(row pgx.Row) (*approval.Request, error) {
	var (
		req       approval.Request
		status    string
		decidedAt *time.Time
	)
	err := row.Scan(
		&req.RequestID, &req.IncidentID, &req.ActionSuggestion, &req.ActionType,
		&req.TicketID, &req.TicketSystem, &status, &req.CreatedAt, &decidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	req.Status = approval.Status(status)
	if decidedAt != nil {
		req.DecidedAt = *decidedAt
	}
	return &req, nil
}
