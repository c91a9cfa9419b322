package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// MaxBodyBytes caps how much of an upstream body is read.
const MaxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned instead of a truncated body.
var ErrBodyTooLarge = errors.New("upstream body exceeds size limit")

// Proxy-protected request headers travel under an X- prefixed name.
var proxiedRequestHeaders = map[string]string{
	"cookie":     "X-Cookie",
	"referer":    "X-Referer",
	"origin":     "X-Origin",
	"user-agent": "X-User-Agent",
	"x-real-ip":  "X-X-Real-Ip",
}

// SimpleProxy fetches through one proxy that takes the target in its
// destination query parameter.
type SimpleProxy struct {
	base    string
	client  *http.Client
	maxBody int64
}

func NewSimpleProxy(proxyBase string, client *http.Client) *SimpleProxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &SimpleProxy{base: proxyBase, client: client, maxBody: MaxBodyBytes}
}

func (p *SimpleProxy) Fetch(ctx context.Context, u string, opts Options) (*Response, error) {
	full, err := MakeFullURL(u, opts)
	if err != nil {
		return nil, err
	}
	target, err := proxyTarget(p.base, full)
	if err != nil {
		return nil, err
	}
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, opts.method(), target, body.reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body.contentType != "" {
		req.Header.Set("Content-Type", body.contentType)
	}
	for k, v := range opts.Headers {
		if renamed, ok := proxiedRequestHeaders[strings.ToLower(k)]; ok {
			req.Header.Set(renamed, v)
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch via proxy: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read proxied body: %w", err)
	}
	if int64(len(data)) > p.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, p.maxBody)
	}

	finalURL := resp.Header.Get("X-Final-Destination")
	if finalURL == "" {
		finalURL = full
	}
	return &Response{
		Body:       data,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Headers:    filterHeaders(opts.ReadHeaders, proxiedResponseHeaders(resp.Header)),
	}, nil
}

// proxiedResponseHeaders flattens upstream headers and exposes the proxied
// cookie header as set-cookie.
func proxiedResponseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	delete(out, "Set-Cookie")
	if c := h.Get("X-Set-Cookie"); c != "" {
		out["Set-Cookie"] = c
	}
	return out
}

func proxyTarget(base, destination string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid proxy url %q", base)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("destination", destination)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
