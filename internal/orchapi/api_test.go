package orchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/argus/internal/approval"
	approvalmem "github.com/linnemanlabs/argus/internal/approval/memstore"
	"github.com/linnemanlabs/argus/internal/audit"
	"github.com/linnemanlabs/argus/internal/chronicler"
	"github.com/linnemanlabs/argus/internal/correlate"
	"github.com/linnemanlabs/argus/internal/gate"
	"github.com/linnemanlabs/argus/internal/incident"
	incidentmem "github.com/linnemanlabs/argus/internal/incident/memstore"
	"github.com/linnemanlabs/argus/internal/pipeline"
	"github.com/linnemanlabs/argus/internal/rules"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/trace"
	tracemem "github.com/linnemanlabs/argus/internal/trace/memstore"
	"github.com/linnemanlabs/argus/internal/triage"
)

// stubRules serves a single cpu rule for web-api.
type stubRules struct{}

func (stubRules) ThresholdRules(context.Context) ([]rules.ThresholdRule, error) {
	return []rules.ThresholdRule{
		{Service: "web-api", Metric: "cpu_percent", Operator: "gt", Threshold: 90, Enabled: true},
	}, nil
}

func (stubRules) MaintenanceWindows(context.Context) ([]rules.MaintenanceWindow, error) {
	return nil, nil
}

func (stubRules) PriorityFor(_ context.Context, severity, _ string) (string, error) {
	if severity == "critical" {
		return "Highest", nil
	}
	return "High", nil
}

func (stubRules) RouteFor(context.Context, string) (rules.Route, error) {
	return rules.Route{Category: "Software", AssignmentGroup: "Platform SRE"}, nil
}

// apiTicket is an always-configured ticket writer.
type apiTicket struct {
	seq      int
	comments map[string][]string
}

func newAPITicket() *apiTicket {
	return &apiTicket{comments: map[string][]string{}}
}

func (f *apiTicket) System() string     { return "jira" }
func (f *apiTicket) IsConfigured() bool { return true }

func (f *apiTicket) Create(context.Context, ticket.Request) (*ticket.Created, error) {
	f.seq++
	return &ticket.Created{
		TicketID:     fmt.Sprintf("10%03d", f.seq),
		TicketNumber: fmt.Sprintf("OPS-%d", f.seq),
		System:       "jira",
	}, nil
}

func (f *apiTicket) AddComment(_ context.Context, ticketID, text string) error {
	f.comments[ticketID] = append(f.comments[ticketID], text)
	return nil
}

func (f *apiTicket) Close(context.Context, string) (bool, string) { return true, "" }

type apiHarness struct {
	api       *API
	router    chi.Router
	incidents *incidentmem.Store
	approvals *approval.Service
	tickets   *apiTicket
}

func newTestAPI(t *testing.T, token string) *apiHarness {
	t.Helper()

	h := &apiHarness{
		incidents: incidentmem.New(),
		tickets:   newAPITicket(),
	}
	traces := tracemem.New()
	h.approvals = approval.NewService(approvalmem.New(), nil)

	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Incidents:  h.incidents,
		Traces:     traces,
		Rules:      stubRules{},
		Gate:       gate.New(stubRules{}, h.incidents),
		Correlator: correlate.New(h.incidents, h.tickets, nil, nil),
		Tickets:    h.tickets,
		Approvals:  h.approvals,
	})
	closer := pipeline.NewCloser(h.incidents, traces, []ticket.Writer{h.tickets}, nil, false, nil, nil, nil)

	h.api = New(Deps{
		Router:       pipeline.NewRouter(runner, nil, audit.New(nil), nil, nil),
		Closer:       closer,
		Incidents:    h.incidents,
		Approvals:    h.approvals,
		Executor:     triage.NewExecutor(nil),
		Writers:      []ticket.Writer{h.tickets},
		WebhookToken: token,
	})
	h.router = chi.NewRouter()
	h.api.RegisterRoutes(h.router)
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) seed(t *testing.T, inc incident.Incident) {
	t.Helper()
	if inc.Status == "" {
		inc.Status = incident.StatusOpen
	}
	if err := h.incidents.Append(context.Background(), &inc); err != nil {
		t.Fatalf("seed %s: %v", inc.ID, err)
	}
}

// New / constructor

func TestNew_MissingRouterPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New without a router did not panic")
		}
	}()
	New(Deps{})
}

// Event intake

func TestPostEvent(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	body := `{
		"event_id": "evt_1",
		"payload": {"service": "web-api", "metric_name": "cpu_percent", "value": 96, "unit": "%"}
	}`

	rec := h.do(t, http.MethodPost, "/api/v1/events", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp pipeline.RouteResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Received != "evt_1" {
		t.Errorf("received = %q", resp.Received)
	}
	// empty type defaults to simulated, which routes to the monitor pipeline
	if resp.RoutedTo != "monitor" {
		t.Errorf("routed_to = %q, want monitor", resp.RoutedTo)
	}
	if resp.Monitor == nil || resp.Monitor.Decision != pipeline.DecisionIncidentCreated {
		t.Fatalf("monitor result = %+v", resp.Monitor)
	}

	inc, ok, err := h.incidents.Get(context.Background(), resp.Monitor.IncidentID)
	if err != nil || !ok {
		t.Fatalf("incident %q not stored: %v", resp.Monitor.IncidentID, err)
	}
	if inc.TicketNumber != "OPS-1" {
		t.Errorf("ticket number = %q", inc.TicketNumber)
	}
}

func TestPostEvent_InvalidJSON(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	rec := h.do(t, http.MethodPost, "/api/v1/events", "{bad", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Incident reads and closure

func TestGetIncident(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{ID: "inc_1", Service: "web-api", Summary: "High CPU"})

	rec := h.do(t, http.MethodGet, "/api/v1/incidents/inc_1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var inc incident.Incident
	if err := json.NewDecoder(rec.Body).Decode(&inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inc.ID != "inc_1" || inc.Service != "web-api" {
		t.Errorf("incident = %+v", inc)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/incidents/inc_missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident status = %d, want 404", rec.Code)
	}
}

func TestCloseIncident(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{
		ID: "inc_1", TicketID: "10001", TicketSystem: "jira", TicketNumber: "OPS-1",
	})

	rec := h.do(t, http.MethodPost, "/api/v1/incidents/inc_1/close", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res pipeline.CloseResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.TicketClosed {
		t.Errorf("result = %+v", res)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/incidents/inc_missing/close", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident status = %d, want 404", rec.Code)
	}
}

func TestCascadeClose_Errors(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{ID: "inc_child", ParentIncidentID: "inc_parent"})

	rec := h.do(t, http.MethodPost, "/api/v1/incidents/inc_child/cascade-close", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-parent status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not a master ticket") {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/v1/incidents/inc_missing/cascade-close", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident status = %d, want 404", rec.Code)
	}
}

func TestCascadeClose(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{
		ID: "inc_parent", ParentIncidentID: incident.ParentSelf,
		TicketID: "10001", TicketSystem: "jira",
	})
	h.seed(t, incident.Incident{ID: "inc_child", ParentIncidentID: "inc_parent"})

	rec := h.do(t, http.MethodPost, "/api/v1/incidents/inc_parent/cascade-close", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res pipeline.CascadeResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ChildrenClosed != 1 {
		t.Errorf("result = %+v", res)
	}
}

// Docs

func TestGenerateDocs_NotConfigured(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	rec := h.do(t, http.MethodPost, "/api/v1/generate-docs", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

// Check

func TestCheck(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{ID: "inc_open"})
	h.seed(t, incident.Incident{ID: "inc_closed", Status: incident.StatusClosed})

	rec := h.do(t, http.MethodPost, "/api/v1/check", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %v", out["status"])
	}
	if out["incidents_open"] != float64(1) || out["incidents_closed"] != float64(1) {
		t.Errorf("counts = %v / %v", out["incidents_open"], out["incidents_closed"])
	}

	// the re-scan is a POST, like every other trigger
	rec = h.do(t, http.MethodGet, "/api/v1/check", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

// countingDocWriter tallies Generate calls.
type countingDocWriter struct {
	keys []string
}

func (w *countingDocWriter) Generate(_ context.Context, cluster chronicler.Cluster, _ []trace.Step) ([]string, error) {
	w.keys = append(w.keys, cluster.Key)
	return []string{cluster.Key + ".md"}, nil
}

func TestCheck_RescansClosures(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{
		ID: "inc_1", Service: "web-api", Summary: "High CPU on web-api",
		Status: incident.StatusClosed,
	})
	h.seed(t, incident.Incident{ID: "inc_open", Service: "web-api", Summary: "High CPU"})

	writer := &countingDocWriter{}
	h.api.docs = chronicler.New(h.incidents, tracemem.New(), writer, nil, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/check", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	docs := out["docs"].(map[string]any)
	if docs["clusters"] != float64(1) || docs["docs_generated"] != float64(1) {
		t.Errorf("report = %v, want the closed incident picked up", docs)
	}
	if len(writer.keys) != 1 || writer.keys[0] != "web-api_high_cpu" {
		t.Errorf("generated = %v", writer.keys)
	}
}

// failingStore errors on every read.
type failingStore struct{}

func (failingStore) List(context.Context) ([]incident.Incident, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Get(context.Context, string) (*incident.Incident, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Append(context.Context, *incident.Incident) error {
	return errors.New("connection refused")
}

func (failingStore) Put(context.Context, *incident.Incident) error {
	return errors.New("connection refused")
}

func TestCheck_Degraded(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	h.api.incidents = failingStore{}

	rec := h.do(t, http.MethodPost, "/api/v1/check", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "degraded" {
		t.Errorf("status = %v", out["status"])
	}
}

// Approval webhook

func pendingApproval(t *testing.T, h *apiHarness, incidentID, ticketID string) string {
	t.Helper()
	id, err := h.approvals.CreatePending(context.Background(), incidentID, "Run runbook restart-web-api", ticketID, "jira")
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return id
}

func TestApprovalWebhook_BadRequests(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{bad", http.StatusBadRequest},
		{"bad decision", `{"request_id":"req_1","decision":"maybe"}`, http.StatusBadRequest},
		{"missing ids", `{"decision":"approve"}`, http.StatusBadRequest},
		{"unknown request", `{"request_id":"req_absent","decision":"approve"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := h.do(t, http.MethodPost, "/webhooks/approval", tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestApprovalWebhook_Approve(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	reqID := pendingApproval(t, h, "inc_1", "10001")

	body := fmt.Sprintf(`{"request_id":%q,"decision":"approve"}`, reqID)
	rec := h.do(t, http.MethodPost, "/webhooks/approval", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "approved" {
		t.Errorf("status = %v", out["status"])
	}

	comments := h.tickets.comments["10001"]
	if len(comments) != 1 || !strings.Contains(comments[0], "Approved action executed: Simulated execution") {
		t.Errorf("ticket comments = %v", comments)
	}

	// the verdict is final
	rec = h.do(t, http.MethodPost, "/webhooks/approval", body, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second decision status = %d, want 404", rec.Code)
	}
}

func TestApprovalWebhook_Reject(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "")
	pendingApproval(t, h, "inc_1", "10001")

	// lookup by incident id
	rec := h.do(t, http.MethodPost, "/webhooks/approval", `{"incident_id":"inc_1","decision":"reject"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "rejected" {
		t.Errorf("status = %v", out["status"])
	}
	if len(h.tickets.comments) != 0 {
		t.Errorf("rejection must not comment, got %v", h.tickets.comments)
	}
}

func TestApprovalWebhook_TokenGate(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, "s3cret")
	reqID := pendingApproval(t, h, "inc_1", "")
	body := fmt.Sprintf(`{"request_id":%q,"decision":"approve"}`, reqID)

	rec := h.do(t, http.MethodPost, "/webhooks/approval", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/webhooks/approval", body, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/webhooks/approval", body, map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, body %s", rec.Code, rec.Body.String())
	}

	// the API routes stay open
	rec = h.do(t, http.MethodPost, "/api/v1/check", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("check status = %d, want 200", rec.Code)
	}
}

// Tracing

func TestCloseIncident_AnnotatesSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := newTestAPI(t, "")
	h.seed(t, incident.Incident{ID: "inc_1"})

	ctx, span := tp.Tracer("test").Start(context.Background(), "POST /api/v1/incidents/{id}/close")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc_1/close", http.NoBody).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	span.End()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	found := false
	for _, attr := range spans[0].Attributes {
		if attr.Key == attribute.Key("argus.incident.id") && attr.Value.AsString() == "inc_1" {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes = %v, want argus.incident.id=inc_1", spans[0].Attributes)
	}
}
