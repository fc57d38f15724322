// Package pgstore provides a PostgreSQL implementation of trace.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otrace "go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/argus/internal/trace"
)

var tracer = otel.Tracer("github.com/linnemanlabs/argus/internal/trace/pgstore")

//go:embed schema.sql
var schema string

// Store persists trace steps in PostgreSQL.
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

const stepColumns = `ts, run_id, incident_id, ticket_number, step_order,
	agent, action, decision, rationale, outcome, detail`

// Append adds one step row.
func (s *Store) Append(ctx context.Context, step *trace.Step) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", otrace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx, `INSERT INTO trace_steps (`+stepColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		step.Timestamp, step.RunID, step.IncidentID, step.TicketNumber, step.StepOrder,
		step.Agent, step.Action, step.Decision, step.Rationale, string(step.Outcome), step.Detail,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// Steps returns all steps of a run in step order.
func (s *Store) Steps(ctx context.Context, runID string) ([]trace.Step, error) {
	return s.query(ctx, `SELECT `+stepColumns+` FROM trace_steps WHERE run_id = $1 ORDER BY step_order, ts`, runID)
}

// StepsForIncidents returns non-started steps for the given incident IDs.
func (s *Store) StepsForIncidents(ctx context.Context, incidentIDs []string) ([]trace.Step, error) {
	if len(incidentIDs) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+stepColumns+` FROM trace_steps
		WHERE incident_id = ANY($1) AND outcome <> 'started' ORDER BY ts, step_order`, incidentIDs)
}

// LastRunForIncident returns the most recent run id that touched the incident.
func (s *Store) LastRunForIncident(ctx context.Context, incidentID string) (string, error) {
	if incidentID == "" {
		return "", nil
	}
	ctx, span := tracer.Start(ctx, "pgstore.LastRunForIncident", otrace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var runID string
	err := s.pool.QueryRow(ctx,
		`SELECT run_id FROM trace_steps WHERE incident_id = $1 ORDER BY ts DESC, step_order DESC LIMIT 1`,
		incidentID,
	).Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("last run: %w", err)
	}
	return runID, nil
}

// MaxStep returns the highest step order for a run.
func (s *Store) MaxStep(ctx context.Context, runID string) (int, error) {
	if runID == "" {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "pgstore.MaxStep", otrace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var mx int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(step_order), 0) FROM trace_steps WHERE run_id = $1`, runID,
	).Scan(&mx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("max step: %w", err)
	}
	return mx, nil
}

// StampTicketNumber back-fills the ticket number on all rows of a run.
func (s *Store) StampTicketNumber(ctx context.Context, runID, ticketNumber string) error {
	if ticketNumber == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "pgstore.StampTicketNumber", otrace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`UPDATE trace_steps SET ticket_number = $2 WHERE run_id = $1`, runID, ticketNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("stamp ticket: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]trace.Step, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Steps", otrace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []trace.Step
	for rows.Next() {
		var st trace.Step
		var outcome string
		if err := rows.Scan(
			&st.Timestamp, &st.RunID, &st.IncidentID, &st.TicketNumber, &st.StepOrder,
			&st.Agent, &st.Action, &st.Decision, &st.Rationale, &outcome, &st.Detail,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Outcome = trace.Outcome(outcome)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return out, nil
}
