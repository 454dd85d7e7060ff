package api

import (
	"net/http"

	"github.com/shaiso/Kickoff/internal/domain"
)

// ListProviders — GET /api/v1/providers
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.providers.List(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, providersResponse(list), len(list))
}

// ListDisabledProviders — GET /api/v1/providers/disabled
func (h *Handler) ListDisabledProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.providers.ListDisabled(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, providersResponse(list), len(list))
}

func providersResponse(list []domain.ProviderHealth) []ProviderResponse {
	resp := make([]ProviderResponse, len(list))
	for i, p := range list {
		resp[i] = ProviderFromDomain(p)
	}
	return resp
}
