// Package apitoken keeps the provider API token and attaches it to outgoing
// requests.
package apitoken

import (
	"context"

	"github.com/example/provider-gateway/services/provider-fetch/internal/kvstore"
)

// StoreKey is where the current token lives in the key-value store.
const StoreKey = "provider-api-token"

// Store reads and writes the token. The value is opaque and returned exactly
// as stored; only an empty value reads as absent.
type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) Get(ctx context.Context) (string, bool, error) {
	tok, ok, err := s.kv.Get(ctx, StoreKey)
	if err != nil || !ok || tok == "" {
		return "", false, err
	}
	return tok, true, nil
}

func (s *Store) Set(ctx context.Context, token string) error {
	return s.kv.Set(ctx, StoreKey, token)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, StoreKey)
}
