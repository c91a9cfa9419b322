// Package enablement narrows the M3U8 proxy pool to the entries the user has
// not switched off.
package enablement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/provider-gateway/services/provider-fetch/internal/kvstore"
	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

// StoreKey holds a JSON object mapping a pool index ("0", "1", ...) to bool.
const StoreKey = "m3u8-proxy-enabled"

const readTimeout = 2 * time.Second

type Filter struct {
	store kvstore.Store
	log   *zap.Logger
}

func New(store kvstore.Store, log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{store: store, log: log}
}

// Apply keeps every entry whose index is not mapped to the JSON value false.
// Any other value, including strings and numbers, leaves the entry enabled.
// Matching is by position, so the map must be kept in step with the pool
// order. Missing, unreadable or malformed state leaves the list untouched.
func (f *Filter) Apply(ctx context.Context, all []string) []string {
	enabled, ok := f.read(ctx)
	if !ok {
		return all
	}
	out := make([]string, 0, len(all))
	for i, u := range all {
		if isFalse(enabled[strconv.Itoa(i)]) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Source wraps src so every selection sees the filtered pool.
func (f *Filter) Source(src rotation.Source) rotation.Source {
	return func() []string {
		var all []string
		if src != nil {
			all = src()
		}
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		defer cancel()
		return f.Apply(ctx, all)
	}
}

// Load returns the persisted map, or an empty one when nothing usable is
// stored. Entries whose value is not a bool are left out.
func (f *Filter) Load(ctx context.Context) (map[string]bool, error) {
	raw, ok, err := f.store.Get(ctx, StoreKey)
	if err != nil {
		return nil, fmt.Errorf("enablement: read: %w", err)
	}
	out := map[string]bool{}
	if !ok {
		return out, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		f.log.Warn("malformed m3u8 proxy enablement map", zap.Error(err))
		return out, nil
	}
	for k, v := range entries {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			out[k] = b
		}
	}
	return out, nil
}

// Save replaces the persisted map.
func (f *Filter) Save(ctx context.Context, enabled map[string]bool) error {
	if enabled == nil {
		enabled = map[string]bool{}
	}
	b, err := json.Marshal(enabled)
	if err != nil {
		return fmt.Errorf("enablement: encode: %w", err)
	}
	if err := f.store.Set(ctx, StoreKey, string(b)); err != nil {
		return fmt.Errorf("enablement: write: %w", err)
	}
	return nil
}

func (f *Filter) read(ctx context.Context) (map[string]json.RawMessage, bool) {
	raw, ok, err := f.store.Get(ctx, StoreKey)
	if err != nil {
		f.log.Warn("enablement map unavailable, using full pool", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var enabled map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &enabled); err != nil || enabled == nil {
		f.log.Warn("malformed m3u8 proxy enablement map", zap.Error(err))
		return nil, false
	}
	return enabled, true
}

func isFalse(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "false"
}
