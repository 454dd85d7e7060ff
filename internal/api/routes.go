package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Dead letters
	mux.Handle("GET /api/v1/dlq", chain(http.HandlerFunc(h.ListDeadLetters)))
	mux.Handle("GET /api/v1/dlq/count", chain(http.HandlerFunc(h.CountDeadLetters)))
	mux.Handle("DELETE /api/v1/dlq/{lane}/{id}", chain(http.HandlerFunc(h.DeleteDeadLetter)))
	mux.Handle("DELETE /api/v1/dlq", chain(http.HandlerFunc(h.ClearDeadLetters)))

	// Providers
	mux.Handle("GET /api/v1/providers", chain(http.HandlerFunc(h.ListProviders)))
	mux.Handle("GET /api/v1/providers/disabled", chain(http.HandlerFunc(h.ListDisabledProviders)))

	// Matches
	mux.Handle("POST /api/v1/matches/{id}/schedule", chain(http.HandlerFunc(h.ScheduleMatch)))
	mux.Handle("POST /api/v1/matches/{id}/cancel", chain(http.HandlerFunc(h.CancelMatch)))
	mux.Handle("POST /api/v1/reconcile", chain(http.HandlerFunc(h.Reconcile)))
}
