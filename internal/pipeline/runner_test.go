package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	approvalmem "github.com/linnemanlabs/argus/internal/approval/memstore"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/correlate"
	"github.com/linnemanlabs/argus/internal/event"
	"github.com/linnemanlabs/argus/internal/gate"
	"github.com/linnemanlabs/argus/internal/incident"
	incidentmem "github.com/linnemanlabs/argus/internal/incident/memstore"
	"github.com/linnemanlabs/argus/internal/notify/teams"
	"github.com/linnemanlabs/argus/internal/pipeline"
	"github.com/linnemanlabs/argus/internal/rules"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/trace"
	tracemem "github.com/linnemanlabs/argus/internal/trace/memstore"
	"github.com/linnemanlabs/argus/internal/triage"
)

// tableProvider serves fixed rule tables.
type tableProvider struct {
	rules   []rules.ThresholdRule
	windows []rules.MaintenanceWindow
}

func (p *tableProvider) ThresholdRules(context.Context) ([]rules.ThresholdRule, error) {
	return p.rules, nil
}

func (p *tableProvider) MaintenanceWindows(context.Context) ([]rules.MaintenanceWindow, error) {
	return p.windows, nil
}

func (p *tableProvider) PriorityFor(_ context.Context, severity, _ string) (string, error) {
	if severity == "critical" {
		return "Highest", nil
	}
	return "High", nil
}

func (p *tableProvider) RouteFor(context.Context, string) (rules.Route, error) {
	return rules.Route{Category: "Software", AssignmentGroup: "Platform SRE"}, nil
}

// fakeTicket is an in-memory ticket.Writer.
type fakeTicket struct {
	configured bool
	failCreate bool
	failClose  bool
	seq        int
	comments   map[string][]string
	closed     []string
}

func newFakeTicket() *fakeTicket {
	return &fakeTicket{configured: true, comments: map[string][]string{}}
}

func (f *fakeTicket) System() string     { return "jira" }
func (f *fakeTicket) IsConfigured() bool { return f.configured }

func (f *fakeTicket) Create(context.Context, ticket.Request) (*ticket.Created, error) {
	if f.failCreate {
		return nil, errors.New("itsm down")
	}
	f.seq++
	return &ticket.Created{
		TicketID:     fmt.Sprintf("10%03d", f.seq),
		TicketNumber: fmt.Sprintf("OPS-%d", f.seq),
		System:       "jira",
	}, nil
}

func (f *fakeTicket) AddComment(_ context.Context, ticketID, text string) error {
	f.comments[ticketID] = append(f.comments[ticketID], text)
	return nil
}

func (f *fakeTicket) Close(_ context.Context, ticketID string) (bool, string) {
	if f.failClose {
		return false, "remote close rejected"
	}
	f.closed = append(f.closed, ticketID)
	return true, ""
}

// fakeNotifier records sent cards.
type fakeNotifier struct {
	configured bool
	fail       bool
	cards      []teams.Card
}

func (f *fakeNotifier) IsConfigured() bool { return f.configured }

func (f *fakeNotifier) Send(_ context.Context, card teams.Card) error {
	if f.fail {
		return errors.New("webhook 500")
	}
	f.cards = append(f.cards, card)
	return nil
}

func (f *fakeNotifier) Announce(ctx context.Context, text string) error {
	return f.Send(ctx, teams.Card{Text: text})
}

type harness struct {
	incidents *incidentmem.Store
	traces    *tracemem.Store
	approvals *approval.Service
	tickets   *fakeTicket
	notifier  *fakeNotifier
	runner    *pipeline.Runner
}

func newHarness(t *testing.T, provider rules.Provider) *harness {
	t.Helper()

	runbookDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(runbookDir, "restart-web-api.md"), []byte("# rb\n"), 0o600); err != nil {
		t.Fatalf("write runbook: %v", err)
	}

	h := &harness{
		incidents: incidentmem.New(),
		traces:    tracemem.New(),
		tickets:   newFakeTicket(),
		notifier:  &fakeNotifier{configured: true},
	}
	h.approvals = approval.NewService(approvalmem.New(), nil)
	h.runner = pipeline.NewRunner(pipeline.RunnerDeps{
		Incidents:  h.incidents,
		Traces:     h.traces,
		Rules:      provider,
		Gate:       gate.New(provider, h.incidents),
		Correlator: correlate.New(h.incidents, h.tickets, nil, nil),
		Tickets:    h.tickets,
		Notifier:   h.notifier,
		Runbooks:   triage.NewRunbookDir(runbookDir),
		Approvals:  h.approvals,
	})
	return h
}

func cpuEvent(value float64) *event.Inbound {
	return &event.Inbound{
		EventID: "evt_1",
		Type:    "alert",
		Payload: map[string]any{
			"source":  "prometheus",
			"metric":  "cpu_percent",
			"value":   value,
			"unit":    "%",
			"service": "web-api",
		},
	}
}

func cpuRules() *tableProvider {
	return &tableProvider{rules: []rules.ThresholdRule{
		{Service: "web-api", Metric: "cpu_percent", Operator: "gt", Threshold: 90, Enabled: true},
		{Service: "web-api", Metric: "up", Operator: "lt", Threshold: 1, Enabled: true},
	}}
}

func stepByAction(steps []trace.Step, action string, outcome trace.Outcome) *trace.Step {
	for i := range steps {
		if steps[i].Action == action && steps[i].Outcome == outcome {
			return &steps[i]
		}
	}
	return nil
}

func TestRunMonitorNoBreach(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cpuRules())
	res, err := h.runner.RunMonitor(context.Background(), cpuEvent(50), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionNoAlert {
		t.Errorf("decision = %q, want no_alert", res.Decision)
	}
	if res.IncidentID != "" {
		t.Errorf("incident created on a quiet reading: %q", res.IncidentID)
	}

	steps, _ := h.traces.Steps(context.Background(), res.RunID)
	final := steps[len(steps)-1]
	if final.Agent != "Pipeline" || final.Outcome != trace.OutcomeCompleted {
		t.Errorf("final step = %+v, want completed Pipeline row", final)
	}
	if final.Decision != pipeline.DecisionNoAlert {
		t.Errorf("final decision = %q", final.Decision)
	}
}

func TestRunMonitorMaintenanceSuppression(t *testing.T) {
	t.Parallel()

	provider := cpuRules()
	now := time.Now().UTC()
	provider.windows = []rules.MaintenanceWindow{
		{Service: "web-api", Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
	}

	h := newHarness(t, provider)
	res, err := h.runner.RunMonitor(context.Background(), cpuEvent(95), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionIgnored || res.Reason != gate.ReasonMaintenanceWindow {
		t.Errorf("decision=%q reason=%q, want ignored/maintenance_window", res.Decision, res.Reason)
	}

	steps, _ := h.traces.Steps(context.Background(), res.RunID)
	if stepByAction(steps, "route_alert", trace.OutcomeSuppressed) == nil {
		t.Error("no suppressed route_alert row logged")
	}
	if incs, _ := h.incidents.List(context.Background()); len(incs) != 0 {
		t.Errorf("%d incidents created under maintenance", len(incs))
	}
}

func TestRunMonitorBatchDedupe(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cpuRules())
	dedupe := gate.DedupeSet{}

	first, err := h.runner.RunMonitor(context.Background(), cpuEvent(95), dedupe)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("first decision = %q", first.Decision)
	}

	second, err := h.runner.RunMonitor(context.Background(), cpuEvent(96), dedupe)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Decision != pipeline.DecisionIgnored || second.Reason != gate.ReasonDedupe {
		t.Errorf("second decision=%q reason=%q, want ignored/dedupe", second.Decision, second.Reason)
	}
	if incs, _ := h.incidents.List(context.Background()); len(incs) != 1 {
		t.Errorf("%d incidents, want 1", len(incs))
	}
}

func TestRunMonitorFullPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())

	res, err := h.runner.RunMonitor(ctx, cpuEvent(96), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("decision = %q", res.Decision)
	}
	if res.Severity != "critical" {
		t.Errorf("severity = %q, want critical (96%%)", res.Severity)
	}
	if res.TicketNumber != "OPS-1" {
		t.Errorf("ticket number = %q", res.TicketNumber)
	}

	inc, ok, _ := h.incidents.Get(ctx, res.IncidentID)
	if !ok {
		t.Fatal("incident not persisted")
	}
	if inc.TicketNumber != "OPS-1" || inc.TicketSystem != "jira" {
		t.Errorf("incident stamps = %+v", inc)
	}
	if inc.Status != incident.StatusOpen {
		t.Errorf("status = %q", inc.Status)
	}

	// ticket number back-filled onto every trace row of the run
	steps, _ := h.traces.Steps(ctx, res.RunID)
	for _, st := range steps {
		if st.TicketNumber != "OPS-1" {
			t.Errorf("step %d/%s ticket = %q, want OPS-1", st.StepOrder, st.Action, st.TicketNumber)
		}
	}

	// triage ran and commented on the ticket
	if stepByAction(steps, "run_rca", trace.OutcomeSuccess) == nil {
		t.Error("no RCA row")
	}
	if got := h.tickets.comments[inc.TicketID]; len(got) != 1 {
		t.Errorf("enrichment comments = %d, want 1", len(got))
	}

	// critical severity: approval solicitation is skipped despite the runbook match
	if res.ApprovalID != "" {
		t.Errorf("approval id = %q, want none for critical", res.ApprovalID)
	}
	if stepByAction(steps, "request_approval", trace.OutcomeSkipped) == nil {
		t.Error("no skipped request_approval row")
	}

	// one incident notification went out
	if len(h.notifier.cards) != 1 {
		t.Errorf("cards sent = %d, want 1", len(h.notifier.cards))
	}

	final := steps[len(steps)-1]
	if final.Action != "monitor_complete" || final.Outcome != trace.OutcomeCompleted {
		t.Errorf("final step = %+v", final)
	}
}

func TestRunMonitorSolicitsApproval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())

	// 85% is high, not critical: the solicitor offers the runbook
	res, err := h.runner.RunMonitor(ctx, cpuEvent(85), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Severity != "high" {
		t.Fatalf("severity = %q, want high", res.Severity)
	}
	if res.ApprovalID == "" {
		t.Fatal("no approval solicited for a high-severity incident with a runbook")
	}

	req, ok, err := h.approvals.Pending(ctx, res.ApprovalID, "")
	if err != nil || !ok {
		t.Fatalf("pending approval: ok=%v err=%v", ok, err)
	}
	if req.IncidentID != res.IncidentID {
		t.Errorf("approval incident = %q, want %q", req.IncidentID, res.IncidentID)
	}
	if req.ActionSuggestion != "Run runbook restart-web-api" {
		t.Errorf("suggestion = %q", req.ActionSuggestion)
	}
	if req.TicketID == "" || req.TicketSystem != "jira" {
		t.Errorf("approval ticket link = %+v", req)
	}

	// incident card plus approval card
	if len(h.notifier.cards) != 2 {
		t.Errorf("cards sent = %d, want 2", len(h.notifier.cards))
	}
}

func TestRunMonitorDegradesWithoutTicketSystem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())
	h.tickets.configured = false

	res, err := h.runner.RunMonitor(ctx, cpuEvent(85), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("decision = %q", res.Decision)
	}
	if res.TicketNumber != "" {
		t.Errorf("ticket number = %q, want none", res.TicketNumber)
	}

	steps, _ := h.traces.Steps(ctx, res.RunID)
	if stepByAction(steps, "create_ticket", trace.OutcomeSkipped) == nil {
		t.Error("no skipped create_ticket row")
	}
	// triage and solicitation never run without a ticket
	if stepByAction(steps, "run_rca", trace.OutcomeSuccess) != nil {
		t.Error("RCA ran without a ticket")
	}
	if res.ApprovalID != "" {
		t.Errorf("approval id = %q", res.ApprovalID)
	}
}

func TestRunMonitorTicketFailureDegrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())
	h.tickets.failCreate = true

	res, err := h.runner.RunMonitor(ctx, cpuEvent(85), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("decision = %q, a ticket failure must not kill the run", res.Decision)
	}

	steps, _ := h.traces.Steps(ctx, res.RunID)
	if stepByAction(steps, "create_ticket", trace.OutcomeFailed) == nil {
		t.Error("no failed create_ticket row")
	}
	// incident survives locally
	if _, ok, _ := h.incidents.Get(ctx, res.IncidentID); !ok {
		t.Error("incident lost after ticket failure")
	}
}

func TestRunMonitorReopenWarning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())

	closed := &incident.Incident{
		ID:        "inc_prior",
		Service:   "web-api",
		Summary:   "cpu_percent 97 %",
		Status:    incident.StatusClosed,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := h.incidents.Append(ctx, closed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := h.runner.RunMonitor(ctx, cpuEvent(96), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("run monitor: %v", err)
	}
	if res.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("decision = %q, reopen is advisory", res.Decision)
	}

	steps, _ := h.traces.Steps(ctx, res.RunID)
	warn := stepByAction(steps, "reopen_check", trace.OutcomeWarning)
	if warn == nil {
		t.Fatal("no reopen warning row")
	}
	if warn.Decision != "reopen_candidate" || warn.Detail != "prior=inc_prior" {
		t.Errorf("warning row = %+v", warn)
	}
}

func TestRunMonitorCorrelatesSecondIncident(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, cpuRules())

	// distinct services don't dedupe; reuse web-api twice via fresh sets
	first, err := h.runner.RunMonitor(ctx, cpuEvent(96), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := h.runner.RunMonitor(ctx, cpuEvent(97), gate.DedupeSet{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.Correlation == nil || !second.Correlation.CreatedNewParent {
		t.Fatalf("correlation = %+v, want new parent", second.Correlation)
	}
	if second.Correlation.ParentIncidentID != first.IncidentID {
		t.Errorf("parent = %q, want %q", second.Correlation.ParentIncidentID, first.IncidentID)
	}

	parent, _, _ := h.incidents.Get(ctx, first.IncidentID)
	if !parent.IsParent() {
		t.Error("first incident not promoted")
	}
	child, _, _ := h.incidents.Get(ctx, second.IncidentID)
	if !child.IsChild() {
		t.Error("second incident not linked as child")
	}
}
