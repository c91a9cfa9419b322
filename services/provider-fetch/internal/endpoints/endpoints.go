// Package endpoints holds the configured proxy, provider API and M3U8 proxy
// lists and keeps them fresh from an optional YAML file.
package endpoints

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Lists is one snapshot of every pool.
type Lists struct {
	Proxies      []string `yaml:"proxies"`
	ProviderAPIs []string `yaml:"provider_apis"`
	M3U8Proxies  []string `yaml:"m3u8_proxies"`
}

// Pools serves the current snapshot to any number of readers.
type Pools struct {
	cur atomic.Pointer[Lists]
}

func NewPools(initial Lists) *Pools {
	p := &Pools{}
	p.Replace(initial)
	return p
}

// Replace swaps in a new snapshot. Entries that are not http(s) URLs are dropped.
func (p *Pools) Replace(l Lists) {
	clean := Lists{
		Proxies:      sanitize(l.Proxies),
		ProviderAPIs: sanitize(l.ProviderAPIs),
		M3U8Proxies:  sanitize(l.M3U8Proxies),
	}
	p.cur.Store(&clean)
}

func (p *Pools) Snapshot() Lists { return *p.cur.Load() }

func (p *Pools) Proxies() []string      { return p.cur.Load().Proxies }
func (p *Pools) ProviderAPIs() []string { return p.cur.Load().ProviderAPIs }
func (p *Pools) M3U8Proxies() []string  { return p.cur.Load().M3U8Proxies }

// ParseList splits a comma separated env value.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFile reads a YAML endpoints file.
func LoadFile(path string) (Lists, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Lists{}, fmt.Errorf("read endpoints file: %w", err)
	}
	var l Lists
	if err := yaml.Unmarshal(b, &l); err != nil {
		return Lists{}, fmt.Errorf("parse endpoints file %s: %w", path, err)
	}
	return l, nil
}

func sanitize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
