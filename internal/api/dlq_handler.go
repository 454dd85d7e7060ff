package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Kickoff/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListDeadLetters — GET /api/v1/dlq
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		BadRequest(w, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		BadRequest(w, "invalid offset")
		return
	}

	entries, err := h.deadLetters.List(r.Context(), limit, offset)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	total, err := h.deadLetters.Count(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	resp := make([]DeadLetterResponse, len(entries))
	for i, e := range entries {
		resp[i] = DeadLetterFromDomain(e)
	}
	List(w, resp, int(total))
}

// CountDeadLetters — GET /api/v1/dlq/count
func (h *Handler) CountDeadLetters(w http.ResponseWriter, r *http.Request) {
	count, err := h.deadLetters.Count(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	Success(w, CountResponse{Count: count})
}

// DeleteDeadLetter — DELETE /api/v1/dlq/{lane}/{id}
func (h *Handler) DeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	lane := domain.Lane(r.PathValue("lane"))
	id := r.PathValue("id")
	if lane == "" || id == "" {
		BadRequest(w, "lane and task id are required")
		return
	}

	err := h.deadLetters.Delete(r.Context(), lane, id)
	if HandleError(w, h.logger, err, "dead letter not found") {
		return
	}

	h.logger.Info("dead letter deleted", "lane", lane, "task_id", id)
	NoContent(w)
}

// ClearDeadLetters — DELETE /api/v1/dlq
func (h *Handler) ClearDeadLetters(w http.ResponseWriter, r *http.Request) {
	removed, err := h.deadLetters.Clear(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("dead letters cleared", "removed", removed)
	Success(w, ClearResponse{Removed: removed})
}

// queryInt читает целочисленный query-параметр; отсутствующий даёт def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
