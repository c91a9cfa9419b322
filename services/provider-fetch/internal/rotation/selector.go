// Package rotation hands out endpoints from a pool in round-robin order,
// starting at a random offset.
package rotation

import (
	"math/rand/v2"
	"sync"
)

// Source returns the current pool. It is called on every selection, so the
// pool may change between calls.
type Source func() []string

// Selector owns one rotation cursor over one pool.
type Selector struct {
	name   string
	source Source
	intn   func(n int) int

	mu     sync.Mutex
	cursor int
	// observe is called after every Next with the outcome; may be nil.
	observe func(pool string, ok bool)
}

type Option func(*Selector)

// WithIntn replaces the random source used to pick the starting index.
// intn must return a value in [0, n).
func WithIntn(intn func(n int) int) Option {
	return func(s *Selector) { s.intn = intn }
}

// WithObserver registers a callback invoked after each selection.
func WithObserver(fn func(pool string, ok bool)) Option {
	return func(s *Selector) { s.observe = fn }
}

func New(name string, source Source, opts ...Option) *Selector {
	s := &Selector{
		name:   name,
		source: source,
		intn:   rand.IntN,
		cursor: -1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Selector) Name() string { return s.name }

// Next returns the endpoint under the cursor and advances it. An empty pool
// yields ("", false) and leaves the cursor alone.
func (s *Selector) Next() (string, bool) {
	var pool []string
	if s.source != nil {
		pool = s.source()
	}
	url, ok := s.next(pool)
	if s.observe != nil {
		s.observe(s.name, ok)
	}
	return url, ok
}

func (s *Selector) next(pool []string) (string, bool) {
	n := len(pool)
	if n == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= n {
		s.cursor = s.intn(n)
	}
	url := pool[s.cursor]
	s.cursor = (s.cursor + 1) % n
	return url, true
}

// Cursor reports the index the next call will use, or -1 before first use.
func (s *Selector) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
