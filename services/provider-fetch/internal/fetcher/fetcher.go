// Package fetcher implements the fetch capability the provider resolution
// library runs on: one adapter that routes through a rotating pool of HTTP
// proxies and one that routes through the extension.
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNoEndpoint is returned when the proxy pool is empty.
var ErrNoEndpoint = errors.New("no proxy endpoint configured")

// Options describes one fetch. Body may be nil, string, []byte, url.Values,
// FormData or any JSON-encodable value.
type Options struct {
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
	BaseURL     string            `json:"baseUrl,omitempty"`
	Body        any               `json:"body,omitempty"`
	ReadHeaders []string          `json:"readHeaders,omitempty"`
}

type Response struct {
	Body       []byte
	FinalURL   string
	StatusCode int
	// Headers holds only the names listed in Options.ReadHeaders.
	Headers http.Header
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string, opts Options) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	return f(ctx, url, opts)
}

// FormField is one multipart form entry. Order is preserved.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type FormData []FormField

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// filterHeaders keeps the entries of src whose name, compared
// case-insensitively, appears in allow.
func filterHeaders(allow []string, src map[string]string) http.Header {
	out := http.Header{}
	if len(allow) == 0 {
		return out
	}
	want := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		want[strings.ToLower(name)] = struct{}{}
	}
	for k, v := range src {
		if _, ok := want[strings.ToLower(k)]; ok {
			out.Set(k, v)
		}
	}
	return out
}
