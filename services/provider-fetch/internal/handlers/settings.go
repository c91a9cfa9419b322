package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/provider-gateway/internal/platform/api"
	"github.com/example/provider-gateway/internal/platform/httpserver"
	"github.com/example/provider-gateway/internal/platform/logging"
	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

// EnablementStore is the part of enablement.Filter the settings API needs.
type EnablementStore interface {
	Load(ctx context.Context) (map[string]bool, error)
	Save(ctx context.Context, enabled map[string]bool) error
}

type m3u8ProxySetting struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type SettingsDeps struct {
	// All lists every configured M3U8 proxy, unfiltered.
	All   rotation.Source
	Store EnablementStore
	Log   *zap.Logger
}

// GetM3U8Proxies handles GET /v1/settings/m3u8-proxies
func GetM3U8Proxies(d SettingsDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		enabled, err := d.Store.Load(r.Context())
		if err != nil {
			logging.OrNop(d.Log).Error("load m3u8 proxy settings", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, settingsView(d.All, enabled))
	}
}

// PutM3U8Proxies handles PUT /v1/settings/m3u8-proxies
func PutM3U8Proxies(d SettingsDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var enabled map[string]bool
		if !decodeJSON(w, r, rid, &enabled) {
			return
		}
		for k := range enabled {
			if n, err := strconv.Atoi(k); err != nil || n < 0 || strconv.Itoa(n) != k {
				api.BadRequest(w, "INVALID_INDEX", "keys must be pool indexes", rid, map[string]any{"key": k})
				return
			}
		}
		if err := d.Store.Save(r.Context(), enabled); err != nil {
			logging.OrNop(d.Log).Error("save m3u8 proxy settings", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, settingsView(d.All, enabled))
	}
}

func settingsView(all rotation.Source, enabled map[string]bool) []m3u8ProxySetting {
	var urls []string
	if all != nil {
		urls = all()
	}
	out := make([]m3u8ProxySetting, 0, len(urls))
	for i, u := range urls {
		on, set := enabled[strconv.Itoa(i)]
		out = append(out, m3u8ProxySetting{Index: i, URL: u, Enabled: !set || on})
	}
	return out
}
