package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/example/provider-gateway/services/provider-fetch/internal/extension"
)

// Extension performs fetches through the extension transport.
type Extension struct {
	transport extension.Transport
}

func NewExtension(t extension.Transport) *Extension {
	return &Extension{transport: t}
}

// ErrBinaryBody is returned for []byte bodies that are not valid UTF-8; the
// extension carries bodies as JSON text.
var ErrBinaryBody = errors.New("extension cannot carry a non-UTF-8 body")

func (f *Extension) Fetch(ctx context.Context, u string, opts Options) (*Response, error) {
	if b, ok := opts.Body.([]byte); ok && !utf8.Valid(b) {
		return nil, ErrBinaryBody
	}
	res, err := f.transport.Send(ctx, extension.Request{
		URL:         u,
		BaseURL:     opts.BaseURL,
		Method:      opts.method(),
		Headers:     opts.Headers,
		Query:       opts.Query,
		Body:        bodyObject(opts.Body),
		BodyType:    bodyType(opts.Body),
		ReadHeaders: opts.ReadHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("extension error: %w", err)
	}
	if res == nil || !res.Success {
		msg := "no result"
		if res != nil {
			msg = res.Error
		}
		return nil, errors.New("extension error: " + msg)
	}
	if res.Response == nil {
		return nil, errors.New("extension error: missing response")
	}
	return &Response{
		Body:       envelopeBody(res.Response.Body),
		FinalURL:   res.Response.FinalURL,
		StatusCode: res.Response.StatusCode,
		Headers:    filterHeaders(opts.ReadHeaders, res.Response.Headers),
	}, nil
}

// envelopeBody unwraps a JSON string body; objects and arrays stay as JSON.
func envelopeBody(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return []byte(raw)
}
