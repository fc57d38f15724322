// Package orchapi exposes the orchestrator's HTTP API: event intake,
// incident closure, doc generation, and the approval webhook.
package orchapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/audit"
	"github.com/linnemanlabs/argus/internal/authmw"
	"github.com/linnemanlabs/argus/internal/chronicler"
	"github.com/linnemanlabs/argus/internal/incident"
	"github.com/linnemanlabs/argus/internal/pipeline"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/triage"
)

// API holds dependencies for HTTP handlers.
type API struct {
	logger       log.Logger
	router       *pipeline.Router
	closer       *pipeline.Closer
	incidents    incident.Store
	approvals    *approval.Service
	executor     *triage.Executor
	writers      []ticket.Writer
	docs         *chronicler.Chronicler
	auditor      *audit.Auditor
	metrics      *pipeline.Metrics
	webhookToken string
}

// Deps collects the API's collaborators. Docs and WebhookToken are
// optional; an empty token leaves the approval webhook unauthenticated.
type Deps struct {
	Logger       log.Logger
	Router       *pipeline.Router
	Closer       *pipeline.Closer
	Incidents    incident.Store
	Approvals    *approval.Service
	Executor     *triage.Executor
	Writers      []ticket.Writer
	Docs         *chronicler.Chronicler
	Auditor      *audit.Auditor
	Metrics      *pipeline.Metrics
	WebhookToken string
}

// New creates a new API handler.
func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	if d.Router == nil {
		panic(xerrors.New("event router is required"))
	}
	if d.Closer == nil {
		panic(xerrors.New("closer is required"))
	}
	if d.Approvals == nil {
		panic(xerrors.New("approval service is required"))
	}
	if d.Auditor == nil {
		d.Auditor = audit.New(nil)
	}
	return &API{
		logger:       d.Logger,
		router:       d.Router,
		closer:       d.Closer,
		incidents:    d.Incidents,
		approvals:    d.Approvals,
		executor:     d.Executor,
		writers:      d.Writers,
		docs:         d.Docs,
		auditor:      d.Auditor,
		metrics:      d.Metrics,
		webhookToken: d.WebhookToken,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", a.handlePostEvent)
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Post("/incidents/{id}/close", a.handleCloseIncident)
		r.Post("/incidents/{id}/cascade-close", a.handleCascadeClose)
		r.Post("/generate-docs", a.handleGenerateDocs)
		r.Post("/check", a.handleCheck)
	})
	r.Route("/webhooks", func(r chi.Router) {
		if a.webhookToken != "" {
			r.Use(authmw.BearerToken(a.webhookToken))
		}
		r.Post("/approval", a.handleApproval)
	})
}
