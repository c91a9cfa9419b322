package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/provider-gateway/internal/platform/api"
	"github.com/example/provider-gateway/internal/platform/httpserver"
	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

type endpointResponse struct {
	Pool string `json:"pool"`
	URL  string `json:"url"`
}

// NextEndpoint handles GET /v1/endpoints/{pool}
func NextEndpoint(set *rotation.Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pool := strings.TrimSpace(chi.URLParam(r, "pool"))
		sel, ok := set.ByName(pool)
		if !ok {
			api.NotFound(w, "UNKNOWN_POOL", "unknown pool "+pool, rid)
			return
		}
		u, ok := sel.Next()
		if !ok {
			api.Unavailable(w, "NO_ENDPOINT", "no "+pool+" endpoint configured", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, endpointResponse{Pool: pool, URL: u})
	}
}
