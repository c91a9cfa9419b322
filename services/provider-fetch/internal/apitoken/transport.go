package apitoken

import (
	"net/http"

	"go.uber.org/zap"
)

// Header carries the token in both directions.
const Header = "X-Token"

// Transport attaches the stored token to every request and stores any
// refreshed token the upstream sends back. Token store failures are logged
// and never fail the request.
type Transport struct {
	Base   http.RoundTripper
	Tokens *Store
	Log    *zap.Logger
	// OnRefresh runs after a refreshed token has been stored.
	OnRefresh func()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}

	out := req
	if tok, ok, err := t.Tokens.Get(ctx); err != nil {
		log.Warn("read api token", zap.Error(err))
	} else if ok {
		out = req.Clone(ctx)
		out.Header.Set(Header, tok)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if fresh := resp.Header.Get(Header); fresh != "" {
		if err := t.Tokens.Set(ctx, fresh); err != nil {
			log.Warn("store refreshed api token", zap.Error(err))
		} else if t.OnRefresh != nil {
			t.OnRefresh()
		}
	}
	return resp, nil
}

// Client returns an http.Client whose transport is t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}
