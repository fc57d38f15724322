package pipeline

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/argus/internal/audit"
	"github.com/linnemanlabs/argus/internal/chronicler"
	"github.com/linnemanlabs/argus/internal/event"
	"github.com/linnemanlabs/argus/internal/gate"
)

// Router is the single entry point for inbound events: classify, audit,
// dispatch to the phase pipeline.
type Router struct {
	runner  *Runner
	docs    *chronicler.Chronicler
	auditor *audit.Auditor
	logger  log.Logger
	metrics *Metrics
}

// NewRouter creates a Router. docs may be nil; chronicler events then ack
// without running the doc pipeline.
func NewRouter(runner *Runner, docs *chronicler.Chronicler, auditor *audit.Auditor, logger log.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = log.Nop()
	}
	if auditor == nil {
		auditor = audit.New(nil)
	}
	return &Router{runner: runner, docs: docs, auditor: auditor, logger: logger, metrics: metrics}
}

// RouteResult is the routing envelope returned to the event submitter.
type RouteResult struct {
	Received string             `json:"received"`
	RoutedTo event.Phase        `json:"routed_to"`
	Monitor  *MonitorResult     `json:"monitor,omitempty"`
	Docs     *chronicler.Report `json:"docs,omitempty"`
}

// Handle routes one inbound event. Each call owns a fresh dedupe set; batch
// submitters should call HandleBatch so dedup spans the batch.
func (r *Router) Handle(ctx context.Context, in *event.Inbound) (*RouteResult, error) {
	return r.handle(ctx, in, gate.DedupeSet{})
}

// HandleBatch routes a batch of events sharing one dedupe set, so the
// second breach of a (service, metric) pair within the batch is suppressed.
func (r *Router) HandleBatch(ctx context.Context, events []event.Inbound) ([]RouteResult, error) {
	dedupe := gate.DedupeSet{}
	out := make([]RouteResult, 0, len(events))
	for i := range events {
		res, err := r.handle(ctx, &events[i], dedupe)
		if err != nil {
			return out, err
		}
		out = append(out, *res)
	}
	return out, nil
}

func (r *Router) handle(ctx context.Context, in *event.Inbound, dedupe gate.DedupeSet) (*RouteResult, error) {
	eventID := in.EventID
	if eventID == "" {
		eventID = "unknown"
	}
	r.auditor.Simple(ctx, "conductor", "received_event", eventID, "logged")

	phase := event.Classify(in.Type)
	if r.metrics != nil {
		r.metrics.EventsTotal.WithLabelValues(string(phase)).Inc()
	}
	res := &RouteResult{Received: eventID, RoutedTo: phase}

	switch phase {
	case event.PhaseMonitor:
		mon, err := r.runner.RunMonitor(ctx, in, dedupe)
		if err != nil {
			return nil, fmt.Errorf("monitor pipeline: %w", err)
		}
		res.Monitor = mon
	case event.PhaseChronicler:
		if r.docs == nil {
			break
		}
		incidentID, ticketNumber := closurePayload(in)
		report, err := r.docs.Run(ctx, incidentID, ticketNumber)
		if err != nil {
			return nil, fmt.Errorf("chronicler pipeline: %w", err)
		}
		res.Docs = report
	case event.PhaseTriage:
		// incident_created events from external sources only acknowledge;
		// the monitor pipeline runs triage inline for its own incidents.
	}
	return res, nil
}

func closurePayload(in *event.Inbound) (incidentID, ticketNumber string) {
	if in.Payload == nil {
		return "", ""
	}
	if v, ok := in.Payload["incident_id"].(string); ok {
		incidentID = v
	}
	if v, ok := in.Payload["ticket_number"].(string); ok {
		ticketNumber = v
	}
	return incidentID, ticketNumber
}
