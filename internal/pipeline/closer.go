package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/argus/internal/audit"
	"github.com/linnemanlabs/argus/internal/chronicler"
	"github.com/linnemanlabs/argus/internal/incident"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/trace"
)

// Closure errors the API layer maps to client responses.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrNotParent        = errors.New("not a master ticket")
)

// Closer handles single and cascading incident closure. The local record
// always closes; a remote ticket failure is reported, never blocking.
type Closer struct {
	incidents   incident.Store
	traces      trace.Store
	writers     []ticket.Writer
	docs        *chronicler.Chronicler
	triggerDocs bool
	auditor     *audit.Auditor
	logger      log.Logger
	metrics     *Metrics
}

// NewCloser creates a Closer. docs may be nil; triggerDocs additionally
// gates the chronicler trigger by config.
func NewCloser(incidents incident.Store, traces trace.Store, writers []ticket.Writer, docs *chronicler.Chronicler, triggerDocs bool, auditor *audit.Auditor, logger log.Logger, metrics *Metrics) *Closer {
	if logger == nil {
		logger = log.Nop()
	}
	if auditor == nil {
		auditor = audit.New(nil)
	}
	return &Closer{
		incidents:   incidents,
		traces:      traces,
		writers:     writers,
		docs:        docs,
		triggerDocs: triggerDocs,
		auditor:     auditor,
		logger:      logger,
		metrics:     metrics,
	}
}

// CloseResult reports one incident closure.
type CloseResult struct {
	IncidentID    string `json:"incident_id"`
	AlreadyClosed bool   `json:"already_closed,omitempty"`
	TicketClosed  bool   `json:"ticket_closed"`
	Message       string `json:"message,omitempty"`
}

// CascadeResult reports a parent-and-children closure.
type CascadeResult struct {
	ParentID        string `json:"parent_incident_id"`
	ChildrenClosed  int    `json:"children_closed"`
	ChildrenSkipped int    `json:"children_skipped"`
	RemoteFailures  int    `json:"remote_failures"`
	TicketClosed    bool   `json:"ticket_closed"`
}

// Close closes one incident: remote ticket first, local record regardless,
// chronicler last. Closing an already-closed incident is a no-op result.
func (c *Closer) Close(ctx context.Context, incidentID string) (*CloseResult, error) {
	inc, ok, err := c.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("load incident: %w", err)
	}
	if !ok {
		return nil, ErrIncidentNotFound
	}
	if inc.Closed() {
		return &CloseResult{IncidentID: incidentID, AlreadyClosed: true}, nil
	}

	run, err := trace.ResumeRun(ctx, c.traces, incidentID)
	if err != nil {
		return nil, fmt.Errorf("resume run: %w", err)
	}
	if err := run.StampTicket(ctx, inc.TicketNumber); err != nil {
		return nil, fmt.Errorf("stamp ticket: %w", err)
	}

	res, err := c.closeOne(ctx, run, inc)
	if err != nil {
		return nil, err
	}

	result := "success"
	if !res.TicketClosed {
		result = "partial"
	}
	if c.metrics != nil {
		c.metrics.ClosesTotal.WithLabelValues("single", result).Inc()
	}

	c.runChronicler(incidentID, inc.TicketNumber)
	return res, nil
}

// CascadeClose closes a parent and all its children. Children close first;
// a child's remote failure is tallied and the cascade continues. The master
// closes last regardless.
func (c *Closer) CascadeClose(ctx context.Context, parentID string) (*CascadeResult, error) {
	start := time.Now()

	parent, ok, err := c.incidents.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load parent: %w", err)
	}
	if !ok {
		return nil, ErrIncidentNotFound
	}
	if !parent.IsParent() {
		c.auditor.Comprehensive(ctx, "triage", "cascade_close", parentID, "refused",
			time.Since(start), ErrNotParent, "")
		return nil, ErrNotParent
	}

	run, err := trace.ResumeRun(ctx, c.traces, parentID)
	if err != nil {
		return nil, fmt.Errorf("resume run: %w", err)
	}
	if err := run.StampTicket(ctx, parent.TicketNumber); err != nil {
		return nil, fmt.Errorf("stamp ticket: %w", err)
	}
	if err := run.Started(ctx, "Closer", "cascade_close", "invoke",
		fmt.Sprintf("Cascade closing parent %s and its children.", parentID)); err != nil {
		return nil, wrapTrace(err)
	}

	children, err := incident.Children(ctx, c.incidents, parentID)
	if err != nil {
		_ = run.Finished(ctx, "Closer", "cascade_close", "error",
			"Children could not be listed.", trace.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("list children: %w", err)
	}

	res := &CascadeResult{ParentID: parentID}
	for i := range children {
		child := &children[i]
		if child.Closed() {
			res.ChildrenSkipped++
			continue
		}
		childRes, err := c.closeOne(ctx, run, child)
		if err != nil {
			_ = run.Finished(ctx, "Closer", "cascade_close", "error",
				fmt.Sprintf("Cascade aborted while closing child %s.", child.ID), trace.OutcomeFailed, err.Error())
			return nil, err
		}
		res.ChildrenClosed++
		if !childRes.TicketClosed {
			res.RemoteFailures++
		}
	}

	parentRes, err := c.closeOne(ctx, run, parent)
	if err != nil {
		return nil, err
	}
	res.TicketClosed = parentRes.TicketClosed
	if !res.TicketClosed {
		res.RemoteFailures++
	}

	rationale := fmt.Sprintf("Cascade closed parent %s: %d children closed, %d skipped, %d remote failure(s).",
		parentID, res.ChildrenClosed, res.ChildrenSkipped, res.RemoteFailures)
	if err := run.Finished(ctx, "Closer", "cascade_close", "closed", rationale, trace.OutcomeCompleted, ""); err != nil {
		return nil, wrapTrace(err)
	}

	outcome := "success"
	if res.RemoteFailures > 0 {
		outcome = "partial"
	}
	c.auditor.Comprehensive(ctx, "triage", "cascade_close", parentID, outcome, time.Since(start), nil,
		fmt.Sprintf("children_closed=%d children_skipped=%d remote_failures=%d",
			res.ChildrenClosed, res.ChildrenSkipped, res.RemoteFailures))
	if c.metrics != nil {
		c.metrics.ClosesTotal.WithLabelValues("cascade", outcome).Inc()
	}

	c.runChronicler(parentID, parent.TicketNumber)
	return res, nil
}

// closeOne closes the remote ticket and the local record for one incident,
// logging one trace stage. A remote failure is a warning, not an error.
func (c *Closer) closeOne(ctx context.Context, run *trace.Run, inc *incident.Incident) (*CloseResult, error) {
	if err := run.Started(ctx, "Closer", "close_incident", "invoke",
		fmt.Sprintf("Closing incident %s.", inc.ID)); err != nil {
		return nil, wrapTrace(err)
	}

	remoteOK, msg := c.closeTicket(ctx, inc)

	inc.Status = incident.StatusClosed
	if err := c.incidents.Put(ctx, inc); err != nil {
		_ = run.Finished(ctx, "Closer", "close_incident", "error",
			"Local incident record could not be updated.", trace.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("close incident %s: %w", inc.ID, err)
	}

	outcome := trace.OutcomeSuccess
	rationale := fmt.Sprintf("Closed incident %s locally and ticket %s remotely.", inc.ID, orNone(inc.TicketNumber))
	auditOutcome := "success"
	if !remoteOK {
		outcome = trace.OutcomeWarning
		rationale = fmt.Sprintf("Closed incident %s locally; remote ticket not closed (%s).", inc.ID, msg)
		auditOutcome = "no_ticket"
		c.logger.Warn(ctx, "remote ticket close failed", "incident_id", inc.ID, "reason", msg)
	}
	c.auditor.Simple(ctx, "triage", "incident_closed", inc.ID, auditOutcome)

	if err := run.Finished(ctx, "Closer", "close_incident", "closed", rationale, outcome, msg); err != nil {
		return nil, wrapTrace(err)
	}
	return &CloseResult{IncidentID: inc.ID, TicketClosed: remoteOK, Message: msg}, nil
}

func (c *Closer) closeTicket(ctx context.Context, inc *incident.Incident) (bool, string) {
	if inc.TicketID == "" {
		return false, "no ticket"
	}
	w := ticket.BySystem(inc.TicketSystem, c.writers...)
	if w == nil || !w.IsConfigured() {
		return false, "no writer for system " + inc.TicketSystem
	}
	return w.Close(ctx, inc.TicketID)
}

// chroniclerTimeout bounds the detached doc run spawned after a close.
const chroniclerTimeout = time.Minute

// runChronicler fires the doc pipeline without holding up the close
// response. The run gets its own deadline, detached from the request
// context; a failure lands in the log and nowhere else.
func (c *Closer) runChronicler(incidentID, ticketNumber string) {
	if !c.triggerDocs || c.docs == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), chroniclerTimeout)
		defer cancel()
		if _, err := c.docs.Run(ctx, incidentID, ticketNumber); err != nil {
			c.logger.Warn(ctx, "chronicler trigger failed", "incident_id", incidentID, "error", err.Error())
		}
	}()
}
