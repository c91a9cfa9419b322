package rotation

// Pool names, also used as metric labels and URL path values.
const (
	PoolProxy       = "proxy"
	PoolProviderAPI = "provider-api"
	PoolM3U8Proxy   = "m3u8-proxy"
)

// Sources bundles the three pool lookups.
type Sources struct {
	Proxy       Source
	ProviderAPI Source
	M3U8Proxy   Source
}

// Set is the process-wide rotation state: one independent cursor per pool.
// The composition root owns it and injects it where selections happen.
type Set struct {
	Proxy       *Selector
	ProviderAPI *Selector
	M3U8Proxy   *Selector
}

func NewSet(src Sources, opts ...Option) *Set {
	return &Set{
		Proxy:       New(PoolProxy, src.Proxy, opts...),
		ProviderAPI: New(PoolProviderAPI, src.ProviderAPI, opts...),
		M3U8Proxy:   New(PoolM3U8Proxy, src.M3U8Proxy, opts...),
	}
}

// ByName returns the selector for a pool name.
func (s *Set) ByName(name string) (*Selector, bool) {
	switch name {
	case PoolProxy:
		return s.Proxy, true
	case PoolProviderAPI:
		return s.ProviderAPI, true
	case PoolM3U8Proxy:
		return s.M3U8Proxy, true
	default:
		return nil, false
	}
}
