// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/argus/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/argus/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
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

const incidentColumns = `id, service, severity, summary, created_at, status,
	ticket_id, ticket_system, ticket_number, parent_incident_id, parent_ticket_number, context`

// List returns every incident record in creation order.
func (s *Store) List(ctx context.Context) ([]incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents ORDER BY created_at, id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return inc, true, nil
}

// Append adds a new incident row.
func (s *Store) Append(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	if err := s.exec(ctx, inc, `INSERT INTO incidents (`+insertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Put rewrites the full record keyed by inc.ID (upsert).
func (s *Store) Put(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO incidents (` + insertColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			service              = EXCLUDED.service,
			severity             = EXCLUDED.severity,
			summary              = EXCLUDED.summary,
			status               = EXCLUDED.status,
			ticket_id            = EXCLUDED.ticket_id,
			ticket_system        = EXCLUDED.ticket_system,
			ticket_number        = EXCLUDED.ticket_number,
			parent_incident_id   = EXCLUDED.parent_incident_id,
			parent_ticket_number = EXCLUDED.parent_ticket_number,
			context              = EXCLUDED.context`
	if err := s.exec(ctx, inc, query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

const insertColumns = `id, service, severity, summary, created_at, status,
	ticket_id, ticket_system, ticket_number, parent_incident_id, parent_ticket_number, context`

func (s *Store) exec(ctx context.Context, inc *incident.Incident, query string) error {
	var contextJSON []byte
	if len(inc.Context) > 0 {
		b, err := json.Marshal(inc.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		contextJSON = b
	}
	_, err := s.pool.Exec(ctx, query,
		inc.ID, inc.Service, inc.Severity.String(), inc.Summary, inc.CreatedAt, string(inc.Status),
		inc.TicketID, inc.TicketSystem, inc.TicketNumber, inc.ParentIncidentID, inc.ParentTicketNumber,
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("write incident: %w", err)
	}
	return nil
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc         incident.Incident
		severity    string
		status      string
		contextJSON []byte
	)
	err := row.Scan(
		&inc.ID, &inc.Service, &severity, &inc.Summary, &inc.CreatedAt, &status,
		&inc.TicketID, &inc.TicketSystem, &inc.TicketNumber, &inc.ParentIncidentID, &inc.ParentTicketNumber,
		&contextJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Severity = incident.ParseSeverity(severity)
	inc.Status = incident.Status(status)
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &inc.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return &inc, nil
}
