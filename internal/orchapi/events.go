package orchapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/argus/internal/event"
)

func (a *API) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var in event.Inbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if in.Type == "" {
		in.Type = "simulated"
	}

	span := oteltrace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("argus.event.id", in.EventID),
		attribute.String("argus.event.type", in.Type),
	)

	res, err := a.router.Handle(r.Context(), &in)
	if err != nil {
		a.logger.Error(r.Context(), err, "event handling failed", "event_id", in.EventID, "type", in.Type)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("argus.event.phase", string(res.RoutedTo)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
