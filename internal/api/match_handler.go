package api

import (
	"net/http"
)

// ScheduleMatch — POST /api/v1/matches/{id}/schedule
//
// Повторный вызов безопасен: уже стоящие задачи не дублируются,
// created показывает только новые.
func (h *Handler) ScheduleMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "match id is required")
		return
	}

	if h.queue != nil {
		if HandleError(w, h.logger, h.queue.EnsureHealthy(), "") {
			return
		}
	}

	match, err := h.matches.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "match not found") {
		return
	}
	if match.Status.IsTerminal() {
		Conflict(w, "match is "+string(match.Status))
		return
	}

	created, err := h.scheduler.ScheduleMatchTasks(r.Context(), match)
	if HandleError(w, h.logger, err, "match not found") {
		return
	}

	h.logger.Info("match scheduled via api", "match_id", id, "created", created)
	Success(w, ScheduleResponse{MatchID: id, Created: created})
}

// CancelMatch — POST /api/v1/matches/{id}/cancel
func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "match id is required")
		return
	}

	cancelled, err := h.scheduler.CancelMatchTasks(r.Context(), id)
	if HandleError(w, h.logger, err, "match not found") {
		return
	}

	h.logger.Info("match tasks cancelled via api", "match_id", id, "cancelled", cancelled)
	Success(w, CancelResponse{MatchID: id, Cancelled: cancelled})
}

// Reconcile — POST /api/v1/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Reconcile(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, ReconcileResponse{
		ScheduledCount: res.ScheduledCount,
		MatchesSeen:    res.MatchesSeen,
		StuckFixed:     res.StuckFixed,
		Failed:         res.Failed,
	})
}
