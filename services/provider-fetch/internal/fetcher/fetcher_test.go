package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/example/provider-gateway/services/provider-fetch/internal/extension"
	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

func TestMakeFullURL(t *testing.T) {
	cases := []struct {
		name    string
		u       string
		opts    Options
		want    string
		wantErr bool
	}{
		{"plain", "https://a.test/x", Options{}, "https://a.test/x", false},
		{"join adds slash", "x", Options{BaseURL: "https://a.test"}, "https://a.test/x", false},
		{"join dedupes slash", "/x", Options{BaseURL: "https://a.test/"}, "https://a.test/x", false},
		{"query", "https://a.test/x?a=1", Options{Query: map[string]string{"b": "2", "a": "3"}}, "https://a.test/x?a=3&b=2", false},
		{"data url", "data:text/plain,hi", Options{}, "data:text/plain,hi", false},
		{"relative", "/x", Options{}, "", true},
		{"ftp", "ftp://a.test", Options{}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MakeFullURL(tc.u, tc.opts)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Fatalf("expected ErrInvalidURL, got %q err=%v", got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %q, got %q err=%v", tc.want, got, err)
			}
		})
	}
}

type proxyCall struct {
	method      string
	destination string
	header      http.Header
	body        []byte
}

func newProxy(t *testing.T, calls *[]proxyCall, respond func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*calls = append(*calls, proxyCall{
			method:      r.Method,
			destination: r.URL.Query().Get("destination"),
			header:      r.Header.Clone(),
			body:        b,
		})
		if respond != nil {
			respond(w)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSimpleProxy_RequestShape(t *testing.T) {
	var calls []proxyCall
	srv := newProxy(t, &calls, nil)

	_, err := NewSimpleProxy(srv.URL, srv.Client()).Fetch(context.Background(), "/embed/1", Options{
		Method:  "post",
		BaseURL: "https://provider.test",
		Query:   map[string]string{"q": "a b"},
		Headers: map[string]string{
			"Referer":    "https://ref.test",
			"cookie":     "c=1",
			"User-Agent": "ua",
			"Origin":     "https://o.test",
			"X-Real-Ip":  "1.2.3.4",
			"Accept":     "text/html",
		},
		Body: map[string]any{"id": 7},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one proxy call, got %d", len(calls))
	}
	c := calls[0]
	if c.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", c.method)
	}
	if c.destination != "https://provider.test/embed/1?q=a+b" {
		t.Fatalf("unexpected destination %q", c.destination)
	}
	for name, want := range map[string]string{
		"X-Referer":    "https://ref.test",
		"X-Cookie":     "c=1",
		"X-User-Agent": "ua",
		"X-Origin":     "https://o.test",
		"X-X-Real-Ip":  "1.2.3.4",
		"Accept":       "text/html",
		"Content-Type": "application/json",
	} {
		if got := c.header.Get(name); got != want {
			t.Fatalf("header %s: expected %q, got %q", name, want, got)
		}
	}
	if c.header.Get("Referer") != "" || c.header.Get("Cookie") != "" || c.header.Get("Origin") != "" {
		t.Fatalf("protected headers must not pass through unrenamed: %v", c.header)
	}
	if string(c.body) != `{"id":7}` {
		t.Fatalf("unexpected body %s", c.body)
	}
}

func TestSimpleProxy_BodyEncodings(t *testing.T) {
	var calls []proxyCall
	srv := newProxy(t, &calls, nil)
	p := NewSimpleProxy(srv.URL+"/", srv.Client())
	ctx := context.Background()

	if _, err := p.Fetch(ctx, "https://a.test", Options{Method: "POST", Body: "raw=1"}); err != nil {
		t.Fatalf("string body: %v", err)
	}
	if _, err := p.Fetch(ctx, "https://a.test", Options{Method: "POST", Body: url.Values{"a": {"1"}, "b": {"2"}}}); err != nil {
		t.Fatalf("form body: %v", err)
	}
	if _, err := p.Fetch(ctx, "https://a.test", Options{Method: "POST", Body: FormData{{Name: "f", Value: "v"}}}); err != nil {
		t.Fatalf("multipart body: %v", err)
	}

	if string(calls[0].body) != "raw=1" || calls[0].header.Get("Content-Type") == "application/json" {
		t.Fatalf("string body should be sent raw, got %q %q", calls[0].body, calls[0].header.Get("Content-Type"))
	}
	if string(calls[1].body) != "a=1&b=2" || calls[1].header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected form body %q (%s)", calls[1].body, calls[1].header.Get("Content-Type"))
	}

	mt, params, err := mime.ParseMediaType(calls[2].header.Get("Content-Type"))
	if err != nil || mt != "multipart/form-data" {
		t.Fatalf("expected multipart content type, got %q", calls[2].header.Get("Content-Type"))
	}
	form, err := multipart.NewReader(strings.NewReader(string(calls[2].body)), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read multipart: %v", err)
	}
	if got := form.Value["f"]; len(got) != 1 || got[0] != "v" {
		t.Fatalf("unexpected multipart fields %v", form.Value)
	}
}

func TestSimpleProxy_Response(t *testing.T) {
	var calls []proxyCall
	srv := newProxy(t, &calls, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Final-Destination", "https://provider.test/final")
		w.Header().Set("X-Set-Cookie", "session=abc")
		w.Header().Set("X-Other", "hidden")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("<html></html>"))
	})

	res, err := NewSimpleProxy(srv.URL, srv.Client()).Fetch(context.Background(), "https://provider.test/start", Options{
		ReadHeaders: []string{"content-type", "Set-Cookie"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusCreated || string(res.Body) != "<html></html>" {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.Body)
	}
	if res.FinalURL != "https://provider.test/final" {
		t.Fatalf("unexpected final url %q", res.FinalURL)
	}
	if res.Headers.Get("Content-Type") != "text/html" || res.Headers.Get("Set-Cookie") != "session=abc" {
		t.Fatalf("unexpected headers %v", res.Headers)
	}
	if res.Headers.Get("X-Other") != "" {
		t.Fatalf("headers outside ReadHeaders must be dropped: %v", res.Headers)
	}
}

func TestSimpleProxy_FinalURLDefaultsToRequest(t *testing.T) {
	var calls []proxyCall
	srv := newProxy(t, &calls, nil)
	res, err := NewSimpleProxy(srv.URL, srv.Client()).Fetch(context.Background(), "https://provider.test/x", Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.FinalURL != "https://provider.test/x" {
		t.Fatalf("unexpected final url %q", res.FinalURL)
	}
	if len(res.Headers) != 0 {
		t.Fatalf("expected no headers without ReadHeaders, got %v", res.Headers)
	}
}

func TestSimpleProxy_BodyLimit(t *testing.T) {
	var calls []proxyCall
	srv := newProxy(t, &calls, func(w http.ResponseWriter) {
		_, _ = w.Write([]byte("0123456789"))
	})
	p := NewSimpleProxy(srv.URL, srv.Client())

	p.maxBody = 9
	if _, err := p.Fetch(context.Background(), "https://provider.test", Options{}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}

	p.maxBody = 10
	res, err := p.Fetch(context.Background(), "https://provider.test", Options{})
	if err != nil || string(res.Body) != "0123456789" {
		t.Fatalf("expected full body at the limit, got %v err=%v", res, err)
	}
}

func TestSimpleProxy_InvalidInput(t *testing.T) {
	if _, err := NewSimpleProxy("https://proxy.test", nil).Fetch(context.Background(), "/x", Options{}); err == nil {
		t.Fatal("expected url error")
	}
	if _, err := NewSimpleProxy("not a url", nil).Fetch(context.Background(), "https://a.test", Options{}); err == nil {
		t.Fatal("expected proxy url error")
	}
}

func TestLoadBalanced_RotatesProxies(t *testing.T) {
	var aCalls, bCalls []proxyCall
	a := newProxy(t, &aCalls, nil)
	b := newProxy(t, &bCalls, nil)

	sel := rotation.New(rotation.PoolProxy, func() []string { return []string{a.URL, b.URL} },
		rotation.WithIntn(func(int) int { return 0 }))
	f := NewLoadBalanced(sel, http.DefaultClient)

	for i := 0; i < 4; i++ {
		if _, err := f.Fetch(context.Background(), "https://provider.test", Options{}); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if len(aCalls) != 2 || len(bCalls) != 2 {
		t.Fatalf("expected even rotation, got a=%d b=%d", len(aCalls), len(bCalls))
	}
}

func TestLoadBalanced_EmptyPool(t *testing.T) {
	sel := rotation.New(rotation.PoolProxy, func() []string { return nil })
	_, err := NewLoadBalanced(sel, nil).Fetch(context.Background(), "https://provider.test", Options{})
	if !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}

type stubTransport struct {
	got extension.Request
	res *extension.Result
	err error
}

func (s *stubTransport) Send(_ context.Context, req extension.Request) (*extension.Result, error) {
	s.got = req
	return s.res, s.err
}

func TestExtension_FiltersHeaders(t *testing.T) {
	tr := &stubTransport{res: &extension.Result{
		Success: true,
		Response: &extension.ResponseEnvelope{
			StatusCode: 200,
			FinalURL:   "https://provider.test/final",
			Headers:    map[string]string{"Content-Type": "text/html", "Set-Cookie": "x"},
			Body:       json.RawMessage(`"<p>hi</p>"`),
		},
	}}
	res, err := NewExtension(tr).Fetch(context.Background(), "/x", Options{
		BaseURL:     "https://provider.test",
		ReadHeaders: []string{"content-type"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Headers) != 1 || res.Headers.Get("Content-Type") != "text/html" {
		t.Fatalf("expected only content-type, got %v", res.Headers)
	}
	if string(res.Body) != "<p>hi</p>" || res.StatusCode != 200 || res.FinalURL != "https://provider.test/final" {
		t.Fatalf("unexpected response %+v", res)
	}
	if tr.got.URL != "/x" || tr.got.BaseURL != "https://provider.test" || tr.got.Method != http.MethodGet {
		t.Fatalf("unexpected request %+v", tr.got)
	}
}

func TestExtension_ReportedError(t *testing.T) {
	tr := &stubTransport{res: &extension.Result{Success: false, Error: "boom"}}
	_, err := NewExtension(tr).Fetch(context.Background(), "https://a.test", Options{})
	if err == nil || err.Error() != "extension error: boom" {
		t.Fatalf("expected extension error: boom, got %v", err)
	}
}

func TestExtension_TransportError(t *testing.T) {
	cause := errors.New("timeout")
	_, err := NewExtension(&stubTransport{err: cause}).Fetch(context.Background(), "https://a.test", Options{})
	if !errors.Is(err, cause) || !strings.HasPrefix(err.Error(), "extension error: ") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	_, err = NewExtension(&stubTransport{}).Fetch(context.Background(), "https://a.test", Options{})
	if err == nil {
		t.Fatal("expected error for missing result")
	}
}

func TestExtension_BodyConversion(t *testing.T) {
	cases := []struct {
		name     string
		body     any
		wantType string
		wantBody any
	}{
		{"none", nil, extension.BodyNone, nil},
		{"string", "a=1", extension.BodyString, "a=1"},
		{"bytes", []byte("raw"), extension.BodyString, "raw"},
		{"search params", url.Values{"a": {"1", "2"}}, extension.BodyURLSearchParams, map[string]string{"a": "2"}},
		{"form data", FormData{{Name: "f", Value: "1"}, {Name: "f", Value: "3"}}, extension.BodyFormData, map[string]string{"f": "3"}},
		{"object", map[string]int{"n": 1}, extension.BodyObject, map[string]int{"n": 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &stubTransport{res: &extension.Result{Success: true, Response: &extension.ResponseEnvelope{}}}
			if _, err := NewExtension(tr).Fetch(context.Background(), "https://a.test", Options{Body: tc.body}); err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if tr.got.BodyType != tc.wantType {
				t.Fatalf("expected body type %q, got %q", tc.wantType, tr.got.BodyType)
			}
			gotJSON, _ := json.Marshal(tr.got.Body)
			wantJSON, _ := json.Marshal(tc.wantBody)
			if string(gotJSON) != string(wantJSON) {
				t.Fatalf("expected body %s, got %s", wantJSON, gotJSON)
			}
		})
	}
}

func TestExtension_RejectsBinaryBody(t *testing.T) {
	tr := &stubTransport{res: &extension.Result{Success: true, Response: &extension.ResponseEnvelope{}}}
	_, err := NewExtension(tr).Fetch(context.Background(), "https://a.test", Options{Method: "POST", Body: []byte{0x47, 0xff, 0xfe}})
	if !errors.Is(err, ErrBinaryBody) {
		t.Fatalf("expected ErrBinaryBody, got %v", err)
	}
	if tr.got.URL != "" {
		t.Fatal("transport must not be called for a binary body")
	}
}

func TestEnvelopeBody(t *testing.T) {
	if envelopeBody(nil) != nil || envelopeBody(json.RawMessage("null")) != nil {
		t.Fatal("expected nil for empty body")
	}
	if got := string(envelopeBody(json.RawMessage(`{"a":1}`))); got != `{"a":1}` {
		t.Fatalf("expected raw json object, got %s", got)
	}
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(_ context.Context, u string, _ Options) (*Response, error) {
		return &Response{FinalURL: u}, nil
	})
	res, _ := f.Fetch(context.Background(), "https://a.test", Options{})
	if res.FinalURL != "https://a.test" {
		t.Fatalf("unexpected %+v", res)
	}
}
