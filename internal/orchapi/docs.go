package orchapi

import (
	"encoding/json"
	"net/http"
)

func (a *API) handleGenerateDocs(w http.ResponseWriter, r *http.Request) {
	if a.docs == nil {
		http.Error(w, `{"error":"doc pipeline not configured"}`, http.StatusNotImplemented)
		return
	}

	// Optional body: scope the run to one incident's workflow.
	var body struct {
		IncidentID   string `json:"incident_id"`
		TicketNumber string `json:"ticket_number"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	report, err := a.docs.Run(r.Context(), body.IncidentID, body.TicketNumber)
	if err != nil {
		a.logger.Error(r.Context(), err, "doc generation failed", "incident_id", body.IncidentID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// handleCheck re-scans for unprocessed closures: it counts open and closed
// incidents and, when the doc pipeline is configured, runs a chronicler pass
// over everything closed so far, returning its report. Liveness/readiness
// live on the ops listener.
func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}

	if a.incidents != nil {
		all, err := a.incidents.List(r.Context())
		if err != nil {
			a.logger.Error(r.Context(), err, "check: incident store unreachable")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "degraded", "error": "incident store unreachable"})
			return
		}
		open, closed := 0, 0
		for _, inc := range all {
			if inc.Closed() {
				closed++
			} else {
				open++
			}
		}
		out["incidents_open"] = open
		out["incidents_closed"] = closed
	}

	if a.docs != nil {
		report, err := a.docs.Run(r.Context(), "", "")
		if err != nil {
			a.logger.Error(r.Context(), err, "check: closure re-scan failed")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		out["docs"] = report
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
