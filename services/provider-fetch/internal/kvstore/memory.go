package kvstore

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory keeps values for the process lifetime only.
type Memory struct {
	m *xsync.MapOf[string, string]
}

func NewMemory() *Memory {
	return &Memory{m: xsync.NewMapOf[string, string]()}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.m.Load(key)
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.m.Store(key, value)
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.m.Delete(key)
	return nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() error { return nil }
