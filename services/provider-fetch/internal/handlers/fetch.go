package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/provider-gateway/internal/platform/api"
	"github.com/example/provider-gateway/internal/platform/events"
	"github.com/example/provider-gateway/internal/platform/httpserver"
	"github.com/example/provider-gateway/internal/platform/logging"
	"github.com/example/provider-gateway/internal/platform/metrics"
	"github.com/example/provider-gateway/services/provider-fetch/internal/extension"
	"github.com/example/provider-gateway/services/provider-fetch/internal/fetcher"
)

type fetchRequest struct {
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
	BaseURL     string            `json:"baseUrl,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	BodyType    string            `json:"bodyType,omitempty"`
	ReadHeaders []string          `json:"readHeaders,omitempty"`
}

// Body encodings in fetchResponse. Bodies that are not valid UTF-8 travel
// as base64 so they survive JSON unchanged.
const (
	bodyEncodingText   = "text"
	bodyEncodingBase64 = "base64"
)

type fetchResponse struct {
	Body         string            `json:"body"`
	BodyEncoding string            `json:"bodyEncoding"`
	FinalURL     string            `json:"finalUrl"`
	StatusCode   int               `json:"statusCode"`
	Headers      map[string]string `json:"headers"`
}

type FetchDeps struct {
	Fetcher fetcher.Fetcher
	// Mode labels metrics and events: proxy or extension.
	Mode    string
	Metrics *metrics.Metrics
	Events  *events.Publisher
	Log     *zap.Logger
}

// Fetch handles POST /v1/fetch
func Fetch(d FetchDeps) http.HandlerFunc {
	log := logging.OrNop(d.Log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req fetchRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			api.BadRequest(w, "MISSING_URL", "url is required", rid, nil)
			return
		}
		body, err := decodeBody(req.BodyType, req.Body)
		if err != nil {
			api.BadRequest(w, "INVALID_BODY", err.Error(), rid, nil)
			return
		}

		start := time.Now()
		res, err := d.Fetcher.Fetch(r.Context(), req.URL, fetcher.Options{
			Method:      req.Method,
			Headers:     req.Headers,
			Query:       req.Query,
			BaseURL:     req.BaseURL,
			Body:        body,
			ReadHeaders: req.ReadHeaders,
		})
		if err != nil {
			d.Metrics.Fetch(d.Mode, 0)
			d.Events.Publish(events.SubjectFetchFailed, "fetch_failed", rid, map[string]any{
				"mode":  d.Mode,
				"url":   req.URL,
				"error": err.Error(),
			})
			switch {
			case errors.Is(err, fetcher.ErrNoEndpoint):
				api.Unavailable(w, "NO_ENDPOINT", err.Error(), rid)
			case errors.Is(err, fetcher.ErrInvalidURL):
				api.BadRequest(w, "INVALID_URL", err.Error(), rid, nil)
			case errors.Is(err, fetcher.ErrBinaryBody):
				api.BadRequest(w, "INVALID_BODY", err.Error(), rid, nil)
			case errors.Is(err, fetcher.ErrBodyTooLarge):
				api.BadGateway(w, "BODY_TOO_LARGE", err.Error(), rid)
			default:
				log.Warn("upstream fetch failed",
					zap.String("request_id", rid),
					zap.String("mode", d.Mode),
					zap.String("url", req.URL),
					zap.Error(err))
				api.BadGateway(w, "UPSTREAM_FAILED", err.Error(), rid)
			}
			return
		}

		d.Metrics.Fetch(d.Mode, res.StatusCode)
		d.Events.Publish(events.SubjectFetchCompleted, "fetch_completed", rid, map[string]any{
			"mode":        d.Mode,
			"url":         req.URL,
			"final_url":   res.FinalURL,
			"status_code": res.StatusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		})

		headers := make(map[string]string, len(res.Headers))
		for k := range res.Headers {
			headers[strings.ToLower(k)] = res.Headers.Get(k)
		}
		respBody, encoding := encodeResponseBody(res.Body)
		api.WriteJSON(w, http.StatusOK, fetchResponse{
			Body:         respBody,
			BodyEncoding: encoding,
			FinalURL:     res.FinalURL,
			StatusCode:   res.StatusCode,
			Headers:      headers,
		})
	}
}

func encodeResponseBody(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), bodyEncodingText
	}
	return base64.StdEncoding.EncodeToString(b), bodyEncodingBase64
}

// decodeBody maps a wire body and its type tag back to the value the
// fetcher expects. Without a tag a JSON string is sent raw and anything else
// as a JSON object.
func decodeBody(bodyType string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch bodyType {
	case extension.BodyNone:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		return rawObject(raw)
	case extension.BodyString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.New("body must be a string for bodyType string")
		}
		return s, nil
	case extension.BodyURLSearchParams:
		m, err := flatFields(raw)
		if err != nil {
			return nil, err
		}
		v := url.Values{}
		for k, val := range m {
			v.Set(k, val)
		}
		return v, nil
	case extension.BodyFormData:
		var fields fetcher.FormData
		if err := json.Unmarshal(raw, &fields); err == nil {
			return fields, nil
		}
		m, err := flatFields(raw)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, fetcher.FormField{Name: k, Value: m[k]})
		}
		return fields, nil
	case extension.BodyObject:
		return rawObject(raw)
	default:
		return nil, fmt.Errorf("unknown bodyType %q", bodyType)
	}
}

func rawObject(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.New("body is not valid JSON")
	}
	return v, nil
}

func flatFields(raw json.RawMessage) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.New("form body must be an object of string values")
	}
	return m, nil
}
