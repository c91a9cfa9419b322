package fetcher

import (
	"context"
	"net/http"

	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

// LoadBalanced picks the next proxy from the pool on every call and fetches
// through it with client, which normally carries the API token transport.
type LoadBalanced struct {
	proxies *rotation.Selector
	client  *http.Client
}

func NewLoadBalanced(proxies *rotation.Selector, client *http.Client) *LoadBalanced {
	return &LoadBalanced{proxies: proxies, client: client}
}

func (f *LoadBalanced) Fetch(ctx context.Context, u string, opts Options) (*Response, error) {
	base, ok := f.proxies.Next()
	if !ok {
		return nil, ErrNoEndpoint
	}
	return NewSimpleProxy(base, f.client).Fetch(ctx, u, opts)
}
