package orchapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/argus/internal/pipeline"
)

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inc)
}

func (a *API) handleCloseIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := oteltrace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("argus.incident.id", id))

	res, err := a.closer.Close(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrIncidentNotFound) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "incident close failed", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (a *API) handleCascadeClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := oteltrace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("argus.incident.id", id))

	res, err := a.closer.CascadeClose(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrIncidentNotFound):
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		case errors.Is(err, pipeline.ErrNotParent):
			http.Error(w, `{"error":"not a master ticket"}`, http.StatusBadRequest)
		default:
			a.logger.Error(r.Context(), err, "cascade close failed", "id", id)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
