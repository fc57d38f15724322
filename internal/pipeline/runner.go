// Package pipeline executes the ordered incident pipelines: the monitor
// pipeline that turns a breaching event into an incident with ticket and
// triage context, and the closure paths (single and cascading). Every stage
// writes a started row and exactly one terminal row to the trace; stage
// failures on side channels (notify, enrich) degrade the run instead of
// aborting it.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/audit"
	"github.com/linnemanlabs/argus/internal/correlate"
	"github.com/linnemanlabs/argus/internal/event"
	"github.com/linnemanlabs/argus/internal/gate"
	"github.com/linnemanlabs/argus/internal/incident"
	"github.com/linnemanlabs/argus/internal/notify/teams"
	"github.com/linnemanlabs/argus/internal/probe"
	"github.com/linnemanlabs/argus/internal/rules"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/trace"
	"github.com/linnemanlabs/argus/internal/triage"
)

// Notifier is the one-per-incident notification channel.
type Notifier interface {
	IsConfigured() bool
	Send(ctx context.Context, card teams.Card) error
}

// RunnerDeps collects the runner's collaborators. Tickets, Notifier,
// Runbooks, Narrator, Prom, and Loki may be nil; the corresponding stages
// then log skipped rows.
type RunnerDeps struct {
	Incidents  incident.Store
	Traces     trace.Store
	Rules      rules.Provider
	Gate       *gate.Gate
	Correlator *correlate.Correlator
	Tickets    ticket.Writer
	Notifier   Notifier
	Runbooks   *triage.RunbookDir
	Narrator   triage.Narrator
	Approvals  *approval.Service
	Prom       *probe.Prometheus
	Loki       *probe.Loki
	Auditor    *audit.Auditor
	Logger     log.Logger
	Metrics    *Metrics
}

// Runner drives the monitor pipeline for one event at a time.
type Runner struct {
	d RunnerDeps
}

// NewRunner creates a Runner.
func NewRunner(d RunnerDeps) *Runner {
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	if d.Auditor == nil {
		d.Auditor = audit.New(nil)
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Runner{d: d}
}

// MonitorResult is the outcome of one monitor pipeline run.
type MonitorResult struct {
	Received     string            `json:"received"`
	RunID        string            `json:"run_id"`
	Decision     string            `json:"decision"`
	Reason       string            `json:"reason,omitempty"`
	IncidentID   string            `json:"incident_id,omitempty"`
	Severity     string            `json:"severity,omitempty"`
	TicketNumber string            `json:"ticket_number,omitempty"`
	Correlation  *correlate.Result `json:"correlation,omitempty"`
	ApprovalID   string            `json:"approval_request_id,omitempty"`
}

// Monitor run decisions.
const (
	DecisionNoAlert         = "no_alert"
	DecisionIgnored         = "ignored"
	DecisionIncidentCreated = "incident_created"
)

// RunMonitor executes the monitor pipeline for one inbound event. The
// dedupe set is owned by the caller so a batch of events shares one; pass a
// fresh set for single-event runs. Errors mean the trace or incident store
// failed; policy outcomes (no breach, suppression) are results, not errors.
func (r *Runner) RunMonitor(ctx context.Context, in *event.Inbound, dedupe gate.DedupeSet) (*MonitorResult, error) {
	run := trace.NewRun(r.d.Traces)
	res := &MonitorResult{Received: in.EventID, RunID: run.ID}

	m, err := r.collect(ctx, run, in)
	if err != nil {
		return nil, err
	}
	if res.Received == "" {
		res.Received = m.EventID
	}

	breach, breachReason, err := r.evaluate(ctx, run, m)
	if err != nil {
		return nil, err
	}
	if !breach {
		res.Decision = DecisionNoAlert
		r.d.Metrics.RunsTotal.WithLabelValues(DecisionNoAlert).Inc()
		return res, r.complete(ctx, run, DecisionNoAlert,
			fmt.Sprintf("No threshold rule fired for %s %s=%s.", m.Service, m.Metric, trimFloat(m.Value)))
	}

	create, gateReason, err := r.gateStage(ctx, run, m, dedupe)
	if err != nil {
		return nil, err
	}
	if !create {
		res.Decision = DecisionIgnored
		res.Reason = gateReason
		r.d.Metrics.SuppressionsTotal.WithLabelValues(gateReason).Inc()
		r.d.Metrics.RunsTotal.WithLabelValues(DecisionIgnored).Inc()
		return res, r.complete(ctx, run, DecisionIgnored,
			fmt.Sprintf("Incident creation suppressed (%s) for %s %s.", gateReason, m.Service, m.Metric))
	}

	if err := r.reopenCheck(ctx, run, m); err != nil {
		return nil, err
	}

	inc, err := r.createIncident(ctx, run, m, breachReason, dedupe)
	if err != nil {
		return nil, err
	}
	res.IncidentID = inc.ID
	res.Severity = inc.Severity.String()
	res.Decision = DecisionIncidentCreated

	corr, err := r.correlateStage(ctx, run, inc)
	if err != nil {
		return nil, err
	}
	res.Correlation = corr

	if err := r.notifyStage(ctx, run, inc); err != nil {
		return nil, err
	}

	ticketOK, err := r.ticketStage(ctx, run, inc)
	if err != nil {
		return nil, err
	}
	res.TicketNumber = inc.TicketNumber

	var suggestions []triage.Suggestion
	if ticketOK {
		suggestions, err = r.triageStages(ctx, run, inc, m)
		if err != nil {
			return nil, err
		}
		res.ApprovalID, err = r.solicitStage(ctx, run, inc, suggestions)
		if err != nil {
			return nil, err
		}
	}

	r.d.Metrics.RunsTotal.WithLabelValues(DecisionIncidentCreated).Inc()
	return res, r.complete(ctx, run, DecisionIncidentCreated,
		fmt.Sprintf("Monitor pipeline finished: incident %s, ticket %s.", inc.ID, orNone(inc.TicketNumber)))
}

func (r *Runner) collect(ctx context.Context, run *trace.Run, in *event.Inbound) (*event.Monitoring, error) {
	defer r.observe("collect", time.Now())
	if err := run.Started(ctx, "Collector", "collect_event", "invoke", "Normalizing inbound event."); err != nil {
		return nil, fmt.Errorf("trace collect started: %w", err)
	}
	m := event.Normalize(in)
	rationale := fmt.Sprintf("Normalized event %s from %s: %s=%s %s for service %s.",
		m.EventID, m.Source, m.Metric, trimFloat(m.Value), m.Unit, m.Service)
	if err := run.Finished(ctx, "Collector", "collect_event", "normalized", rationale, trace.OutcomeSuccess, ""); err != nil {
		return nil, fmt.Errorf("trace collect finished: %w", err)
	}
	return m, nil
}

func (r *Runner) evaluate(ctx context.Context, run *trace.Run, m *event.Monitoring) (bool, string, error) {
	defer r.observe("evaluate", time.Now())
	if err := run.Started(ctx, "Evaluator", "evaluate_threshold", "invoke",
		fmt.Sprintf("Evaluating threshold rules for %s %s.", m.Service, m.Metric)); err != nil {
		return false, "", fmt.Errorf("trace evaluate started: %w", err)
	}

	ruleSet, err := r.d.Rules.ThresholdRules(ctx)
	if err != nil {
		_ = run.Finished(ctx, "Evaluator", "evaluate_threshold", "error",
			"Threshold rule table could not be read.", trace.OutcomeFailed, err.Error())
		return false, "", fmt.Errorf("read threshold rules: %w", err)
	}

	breach, reason := rules.Evaluate(ruleSet, m.Service, m.Metric, m.Value)
	decision, outcome := "no_alert", trace.OutcomeSuccess
	rationale := fmt.Sprintf("No enabled rule breached by %s=%s.", m.Metric, trimFloat(m.Value))
	if breach {
		decision = "alert"
		rationale = "Threshold breached: " + reason + "."
	}
	if err := run.Finished(ctx, "Evaluator", "evaluate_threshold", decision, rationale, outcome, ""); err != nil {
		return false, "", fmt.Errorf("trace evaluate finished: %w", err)
	}
	return breach, reason, nil
}

func (r *Runner) gateStage(ctx context.Context, run *trace.Run, m *event.Monitoring, dedupe gate.DedupeSet) (bool, string, error) {
	defer r.observe("gate", time.Now())
	if err := run.Started(ctx, "Alert Router", "route_alert", "invoke",
		"Checking maintenance windows and in-run dedup."); err != nil {
		return false, "", fmt.Errorf("trace gate started: %w", err)
	}

	create, reason, err := r.d.Gate.Decide(ctx, m.Service, m.Metric, dedupe)
	if err != nil {
		_ = run.Finished(ctx, "Alert Router", "route_alert", "error",
			"Gate policy tables could not be read.", trace.OutcomeFailed, err.Error())
		return false, "", fmt.Errorf("gate decide: %w", err)
	}

	outcome := trace.OutcomeSuccess
	rationale := fmt.Sprintf("No suppression policy applies to %s %s.", m.Service, m.Metric)
	if !create {
		outcome = trace.OutcomeSuppressed
		rationale = fmt.Sprintf("Suppressed by %s policy for %s %s.", reason, m.Service, m.Metric)
	}
	if err := run.Finished(ctx, "Alert Router", "route_alert", reason, rationale, outcome, ""); err != nil {
		return false, "", fmt.Errorf("trace gate finished: %w", err)
	}
	return create, reason, nil
}

// reopenCheck is advisory: a match logs a warning row, a lookup failure logs
// a failed row, and the pipeline proceeds either way.
func (r *Runner) reopenCheck(ctx context.Context, run *trace.Run, m *event.Monitoring) error {
	defer r.observe("reopen_check", time.Now())
	if err := run.Started(ctx, "Alert Router", "reopen_check", "invoke",
		"Scanning recently closed incidents for recurrence."); err != nil {
		return fmt.Errorf("trace reopen started: %w", err)
	}

	prior, err := r.d.Gate.CheckReopen(ctx, m.Service, m.Metric)
	switch {
	case err != nil:
		if terr := run.Finished(ctx, "Alert Router", "reopen_check", "error",
			"Reopen lookback failed; proceeding with creation.", trace.OutcomeFailed, err.Error()); terr != nil {
			return fmt.Errorf("trace reopen finished: %w", terr)
		}
		r.d.Logger.Warn(ctx, "reopen check failed", "service", m.Service, "error", err.Error())
	case prior != nil:
		rationale := fmt.Sprintf("Service %s had incident %s (%s) closed within the last 24h; possible recurrence.",
			m.Service, prior.ID, prior.Summary)
		if terr := run.Finished(ctx, "Alert Router", "reopen_check", "reopen_candidate",
			rationale, trace.OutcomeWarning, "prior="+prior.ID); terr != nil {
			return fmt.Errorf("trace reopen finished: %w", terr)
		}
	default:
		if terr := run.Finished(ctx, "Alert Router", "reopen_check", "no_recent_closure",
			"No recently closed incident matches this service and metric.", trace.OutcomeSuccess, ""); terr != nil {
			return fmt.Errorf("trace reopen finished: %w", terr)
		}
	}
	return nil
}

func (r *Runner) createIncident(ctx context.Context, run *trace.Run, m *event.Monitoring, breachReason string, dedupe gate.DedupeSet) (*incident.Incident, error) {
	defer r.observe("create_incident", time.Now())
	if err := run.Started(ctx, "Sentinel", "create_incident", "invoke",
		fmt.Sprintf("Creating incident for %s: %s.", m.Service, breachReason)); err != nil {
		return nil, fmt.Errorf("trace create started: %w", err)
	}

	inc := &incident.Incident{
		ID:        "inc_" + ulid.Make().String(),
		Service:   m.Service,
		Severity:  incident.InferSeverity(m.Metric, m.Value),
		Summary:   m.Summary(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    incident.StatusOpen,
		Context: map[string]string{
			"metric":   m.Metric,
			"value":    trimFloat(m.Value),
			"event_id": m.EventID,
			"source":   m.Source,
		},
	}
	r.attachEvidence(ctx, inc)

	if err := r.d.Incidents.Append(ctx, inc); err != nil {
		_ = run.Finished(ctx, "Sentinel", "create_incident", "error",
			"Incident record could not be persisted.", trace.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("append incident: %w", err)
	}
	run.BindIncident(inc.ID)
	if dedupe != nil {
		dedupe.Add(m.Service, m.Metric)
	}
	r.d.Auditor.Simple(ctx, "sentinel", "incident_created", inc.ID, "success")
	r.d.Metrics.IncidentsCreated.Inc()

	rationale := fmt.Sprintf("Created incident %s (%s) for %s: %s.", inc.ID, inc.Severity, inc.Service, inc.Summary)
	if err := run.Finished(ctx, "Sentinel", "create_incident", "created", rationale, trace.OutcomeSuccess, "severity="+inc.Severity.String()); err != nil {
		return nil, fmt.Errorf("trace create finished: %w", err)
	}
	return inc, nil
}

// attachEvidence fills the incident context from the configured probes.
// Probe failures only cost the evidence, never the incident.
func (r *Runner) attachEvidence(ctx context.Context, inc *incident.Incident) {
	if r.d.Prom != nil && r.d.Prom.IsConfigured() {
		if snap, err := r.d.Prom.Snapshot(ctx, inc.Service, inc.Context["metric"]); err == nil {
			inc.Context["metrics"] = snap
		} else {
			r.d.Logger.Warn(ctx, "metric probe failed", "service", inc.Service, "error", err.Error())
		}
	}
	if r.d.Loki != nil && r.d.Loki.IsConfigured() {
		if snippet, err := r.d.Loki.Snippet(ctx, inc.Service, 5); err == nil {
			inc.Context["logs"] = snippet
		} else {
			r.d.Logger.Warn(ctx, "log probe failed", "service", inc.Service, "error", err.Error())
		}
	}
}

func (r *Runner) correlateStage(ctx context.Context, run *trace.Run, inc *incident.Incident) (*correlate.Result, error) {
	defer r.observe("correlate", time.Now())
	if err := run.Started(ctx, "Correlator", "correlate", "invoke",
		"Checking open incidents for an existing or emerging cluster."); err != nil {
		return nil, fmt.Errorf("trace correlate started: %w", err)
	}

	corr, err := r.d.Correlator.Correlate(ctx, inc.ID, inc.Service, inc.Summary, inc.Severity)
	if err != nil {
		_ = run.Finished(ctx, "Correlator", "correlate", "error",
			"Correlation failed; incident stays standalone.", trace.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("correlate: %w", err)
	}

	decision, rationale := "standalone", fmt.Sprintf("No similar open incident for %s within the window.", inc.Service)
	switch {
	case corr == nil:
	case corr.CreatedNewParent:
		decision = "parent_created"
		rationale = fmt.Sprintf("Promoted %s to parent and linked %s beneath it.", corr.ParentIncidentID, inc.ID)
		r.d.Metrics.CorrelationsTotal.WithLabelValues("promoted").Inc()
	default:
		decision = "attached"
		rationale = fmt.Sprintf("Attached %s to existing parent %s.", inc.ID, corr.ParentIncidentID)
		r.d.Metrics.CorrelationsTotal.WithLabelValues("attached").Inc()
	}
	if err := run.Finished(ctx, "Correlator", "correlate", decision, rationale, trace.OutcomeSuccess, ""); err != nil {
		return nil, fmt.Errorf("trace correlate finished: %w", err)
	}

	// Re-read: correlation rewrites parent/ticket fields.
	if corr != nil {
		if fresh, ok, err := r.d.Incidents.Get(ctx, inc.ID); err == nil && ok {
			*inc = *fresh
		}
	}
	return corr, nil
}

// notifyStage sends the one-per-incident notification. Failures degrade.
func (r *Runner) notifyStage(ctx context.Context, run *trace.Run, inc *incident.Incident) error {
	defer r.observe("notify", time.Now())
	if err := run.Started(ctx, "Notifier", "notify_incident", "invoke",
		"Sending incident notification."); err != nil {
		return fmt.Errorf("trace notify started: %w", err)
	}

	if r.d.Notifier == nil || !r.d.Notifier.IsConfigured() {
		return wrapTrace(run.Finished(ctx, "Notifier", "notify_incident", "skipped",
			"No notification channel configured.", trace.OutcomeSkipped, ""))
	}

	card := teams.Card{
		Title:    fmt.Sprintf("[%s] %s: %s", inc.Severity, inc.Service, inc.Summary),
		Text:     fmt.Sprintf("New incident %s on %s.", inc.ID, inc.Service),
		Severity: inc.Severity.String(),
		Facts: [][2]string{
			{"Incident", inc.ID},
			{"Service", inc.Service},
			{"Severity", inc.Severity.String()},
		},
	}
	if err := r.d.Notifier.Send(ctx, card); err != nil {
		r.d.Logger.Warn(ctx, "incident notification failed", "incident_id", inc.ID, "error", err.Error())
		return wrapTrace(run.Finished(ctx, "Notifier", "notify_incident", "error",
			"Notification send failed; pipeline continues.", trace.OutcomeFailed, err.Error()))
	}
	return wrapTrace(run.Finished(ctx, "Notifier", "notify_incident", "sent",
		fmt.Sprintf("Notified channel about incident %s.", inc.ID), trace.OutcomeSuccess, ""))
}

// ticketStage creates the external ticket and back-fills its number onto the
// incident and the run's earlier steps. A ticket failure degrades: triage
// and solicitation are skipped downstream.
func (r *Runner) ticketStage(ctx context.Context, run *trace.Run, inc *incident.Incident) (bool, error) {
	defer r.observe("create_ticket", time.Now())
	if err := run.Started(ctx, "Ticket Writer", "create_ticket", "invoke",
		"Creating ticket in the configured ITSM system."); err != nil {
		return false, fmt.Errorf("trace ticket started: %w", err)
	}

	if r.d.Tickets == nil || !r.d.Tickets.IsConfigured() {
		return false, wrapTrace(run.Finished(ctx, "Ticket Writer", "create_ticket", "skipped",
			"No ticket system configured.", trace.OutcomeSkipped, ""))
	}

	system := r.d.Tickets.System()
	priority, err := r.d.Rules.PriorityFor(ctx, inc.Severity.String(), system)
	if err != nil {
		r.d.Logger.Warn(ctx, "priority lookup failed", "severity", inc.Severity.String(), "error", err.Error())
	}
	route, err := r.d.Rules.RouteFor(ctx, inc.Service)
	if err != nil {
		r.d.Logger.Warn(ctx, "routing lookup failed", "service", inc.Service, "error", err.Error())
	}

	created, err := r.d.Tickets.Create(ctx, ticket.Request{
		Summary:         fmt.Sprintf("%s: %s", inc.Service, inc.Summary),
		Description:     contextDescription(inc.Context),
		Priority:        priority,
		Category:        route.Category,
		AssignmentGroup: route.AssignmentGroup,
	})
	if err != nil {
		r.d.Metrics.TicketsTotal.WithLabelValues("create", "failed").Inc()
		return false, wrapTrace(run.Finished(ctx, "Ticket Writer", "create_ticket", "error",
			"Ticket creation failed; triage and solicitation will be skipped.", trace.OutcomeFailed, err.Error()))
	}

	inc.TicketID = created.TicketID
	inc.TicketSystem = created.System
	inc.TicketNumber = created.TicketNumber
	if err := r.d.Incidents.Put(ctx, inc); err != nil {
		return false, fmt.Errorf("stamp ticket on incident: %w", err)
	}
	if err := run.StampTicket(ctx, created.TicketNumber); err != nil {
		return false, fmt.Errorf("stamp ticket on trace: %w", err)
	}
	r.d.Auditor.Simple(ctx, "sentinel", "ticket_created", created.TicketID, "success")
	r.d.Metrics.TicketsTotal.WithLabelValues("create", "success").Inc()

	rationale := fmt.Sprintf("Created %s ticket %s for incident %s.", created.System, created.TicketNumber, inc.ID)
	return true, wrapTrace(run.Finished(ctx, "Ticket Writer", "create_ticket", "created",
		rationale, trace.OutcomeSuccess, "ticket="+created.TicketNumber))
}

// triageStages runs RCA, runbook recommendation, and ticket enrichment.
func (r *Runner) triageStages(ctx context.Context, run *trace.Run, inc *incident.Incident, m *event.Monitoring) ([]triage.Suggestion, error) {
	defer r.observe("triage", time.Now())

	if err := run.Started(ctx, "RCA", "run_rca", "invoke",
		"Generating root cause hypotheses."); err != nil {
		return nil, fmt.Errorf("trace rca started: %w", err)
	}
	hyps := triage.Hypotheses(inc.Service, m.Metric)
	narrative := triage.Narrative(ctx, r.d.Narrator, r.d.Logger, inc.Service, inc.Summary, hyps)
	if err := run.Finished(ctx, "RCA", "run_rca", fmt.Sprintf("%d hypotheses", len(hyps)),
		fmt.Sprintf("Produced %d hypotheses for %s (%s).", len(hyps), inc.Service, m.Metric),
		trace.OutcomeSuccess, ""); err != nil {
		return nil, fmt.Errorf("trace rca finished: %w", err)
	}

	if err := run.Started(ctx, "Recommender", "suggest_runbooks", "invoke",
		"Matching incident against the runbook knowledge base."); err != nil {
		return nil, fmt.Errorf("trace recommend started: %w", err)
	}
	var suggestions []triage.Suggestion
	if r.d.Runbooks != nil {
		suggestions = r.d.Runbooks.Suggest(inc.Summary, inc.Service)
	}
	if err := run.Finished(ctx, "Recommender", "suggest_runbooks",
		fmt.Sprintf("%d runbooks", len(suggestions)),
		fmt.Sprintf("Found %d runbook suggestion(s) for %s.", len(suggestions), inc.Service),
		trace.OutcomeSuccess, ""); err != nil {
		return nil, fmt.Errorf("trace recommend finished: %w", err)
	}

	if err := run.Started(ctx, "Enricher", "enrich_ticket", "invoke",
		"Appending triage findings to the ticket."); err != nil {
		return nil, fmt.Errorf("trace enrich started: %w", err)
	}
	runbookLink := ""
	if len(suggestions) > 0 {
		runbookLink = suggestions[0].Path
	}
	if err := triage.Enrich(ctx, r.d.Tickets, inc.TicketID, hyps, narrative, runbookLink); err != nil {
		r.d.Metrics.TicketsTotal.WithLabelValues("comment", "failed").Inc()
		if terr := run.Finished(ctx, "Enricher", "enrich_ticket", "error",
			"Ticket enrichment failed; findings remain in the trace.", trace.OutcomeFailed, err.Error()); terr != nil {
			return nil, fmt.Errorf("trace enrich finished: %w", terr)
		}
		return suggestions, nil
	}
	r.d.Metrics.TicketsTotal.WithLabelValues("comment", "success").Inc()
	if err := run.Finished(ctx, "Enricher", "enrich_ticket", "commented",
		fmt.Sprintf("Added RCA comment to ticket %s.", inc.TicketNumber), trace.OutcomeSuccess, ""); err != nil {
		return nil, fmt.Errorf("trace enrich finished: %w", err)
	}
	return suggestions, nil
}

// solicitStage requests human approval for the suggested runbook when the
// severity allows it. Critical incidents bypass solicitation: they demand a
// human regardless, so no automated action is offered.
func (r *Runner) solicitStage(ctx context.Context, run *trace.Run, inc *incident.Incident, suggestions []triage.Suggestion) (string, error) {
	defer r.observe("solicit", time.Now())
	if err := run.Started(ctx, "Solicitor", "request_approval", "invoke",
		"Deciding whether to solicit approval for a remediation action."); err != nil {
		return "", fmt.Errorf("trace solicit started: %w", err)
	}

	if len(suggestions) == 0 {
		return "", wrapTrace(run.Finished(ctx, "Solicitor", "request_approval", "skipped",
			"No runbook suggestion to act on.", trace.OutcomeSkipped, ""))
	}
	if inc.Severity >= incident.SeverityCritical {
		return "", wrapTrace(run.Finished(ctx, "Solicitor", "request_approval", "skipped",
			"Severity critical: no automated action is offered.", trace.OutcomeSkipped, ""))
	}

	suggestion := "Run runbook " + suggestions[0].Name
	requestID, err := r.d.Approvals.CreatePending(ctx, inc.ID, suggestion, inc.TicketID, inc.TicketSystem)
	if err != nil {
		if terr := run.Finished(ctx, "Solicitor", "request_approval", "error",
			"Approval request could not be recorded.", trace.OutcomeFailed, err.Error()); terr != nil {
			return "", fmt.Errorf("trace solicit finished: %w", terr)
		}
		return "", nil
	}

	detail := ""
	if r.d.Notifier != nil && r.d.Notifier.IsConfigured() {
		card := teams.Card{
			Title:    fmt.Sprintf("Approval needed: %s", inc.Service),
			Text:     fmt.Sprintf("%s for incident %s. Reply via the approval webhook with request_id %s.", suggestion, inc.ID, requestID),
			Severity: inc.Severity.String(),
			Facts: [][2]string{
				{"Request", requestID},
				{"Incident", inc.ID},
				{"Action", suggestion},
			},
		}
		if err := r.d.Notifier.Send(ctx, card); err != nil {
			r.d.Logger.Warn(ctx, "approval card failed", "request_id", requestID, "error", err.Error())
			detail = "notify=failed"
		}
	}

	rationale := fmt.Sprintf("Requested approval %s for %q on incident %s.", requestID, suggestion, inc.ID)
	return requestID, wrapTrace(run.Finished(ctx, "Solicitor", "request_approval", "requested",
		rationale, trace.OutcomeSuccess, detail))
}

// complete writes the terminal pipeline row. It shares the step order with
// no started row: completion is a single-row stage.
func (r *Runner) complete(ctx context.Context, run *trace.Run, decision, rationale string) error {
	return wrapTrace(run.Finished(ctx, "Pipeline", "monitor_complete", decision, rationale, trace.OutcomeCompleted, ""))
}

func (r *Runner) observe(stage string, start time.Time) {
	r.d.Metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func contextDescription(context map[string]string) string {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\n"
		}
		out += k + ": " + context[k]
	}
	return out
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func wrapTrace(err error) error {
	if err != nil {
		return fmt.Errorf("trace append: %w", err)
	}
	return nil
}
