package orchapi

import (
	"encoding/json"
	"net/http"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/ticket"
	"github.com/linnemanlabs/argus/internal/triage"
)

type approvalBody struct {
	RequestID  string `json:"request_id"`
	IncidentID string `json:"incident_id"`
	Decision   string `json:"decision"`
}

// handleApproval receives an approve/reject verdict for a pending request.
// On approve it records the decision, runs the executor, and comments on
// the linked ticket; on reject it only records. A decided or unknown
// request never flips again.
func (a *API) handleApproval(w http.ResponseWriter, r *http.Request) {
	var body approvalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	decision := approval.Decision(body.Decision)
	if !decision.Valid() {
		http.Error(w, `{"error":"decision must be approve or reject"}`, http.StatusBadRequest)
		return
	}
	if body.RequestID == "" && body.IncidentID == "" {
		http.Error(w, `{"error":"provide request_id or incident_id"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pending, ok, err := a.approvals.Pending(ctx, body.RequestID, body.IncidentID)
	if err != nil {
		a.logger.Error(ctx, err, "pending approval lookup failed", "request_id", body.RequestID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"no pending approval found"}`, http.StatusNotFound)
		return
	}

	flipped, err := a.approvals.RecordDecision(ctx, pending.RequestID, decision)
	if err != nil {
		a.logger.Error(ctx, err, "decision could not be recorded", "request_id", pending.RequestID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !flipped {
		// Lost the race against another caller; the first verdict stands.
		http.Error(w, `{"error":"no pending approval found"}`, http.StatusNotFound)
		return
	}
	if a.metrics != nil {
		a.metrics.ApprovalsTotal.WithLabelValues(string(decision)).Inc()
	}

	w.Header().Set("Content-Type", "application/json")

	if decision == approval.DecisionReject {
		a.auditor.Simple(ctx, "triage", "approval_rejected", pending.IncidentID, "success")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "rejected",
			"request_id": pending.RequestID,
		})
		return
	}

	var result triage.ExecResult
	if a.executor != nil {
		result = a.executor.Execute(ctx, pending.IncidentID, pending.ActionType,
			map[string]string{"suggestion": pending.ActionSuggestion})
	}
	if pending.TicketID != "" && pending.TicketSystem != "" {
		if writer := ticket.BySystem(pending.TicketSystem, a.writers...); writer != nil && writer.IsConfigured() {
			comment := "Approved action executed: " + result.Message
			if err := writer.AddComment(ctx, pending.TicketID, comment); err != nil {
				a.logger.Warn(ctx, "approval comment failed", "ticket_id", pending.TicketID, "error", err.Error())
			}
		}
	}
	a.auditor.Simple(ctx, "triage", "approval_executed", pending.IncidentID, "success")

	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "approved",
		"request_id": pending.RequestID,
		"executor":   result,
	})
}
