package enablement

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/provider-gateway/services/provider-fetch/internal/kvstore"
)

type failingStore struct{ kvstore.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store down")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("store down")
}

func newFilter(t *testing.T, raw string) *Filter {
	t.Helper()
	s := kvstore.NewMemory()
	if raw != "" {
		if err := s.Set(context.Background(), StoreKey, raw); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return New(s, nil)
}

func TestApply(t *testing.T) {
	pool := []string{"a", "b", "c"}
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"absent", "", []string{"a", "b", "c"}},
		{"one disabled", `{"1":false}`, []string{"a", "c"}},
		{"explicit true", `{"0":true,"2":false}`, []string{"a", "b"}},
		{"all disabled", `{"0":false,"1":false,"2":false}`, []string{}},
		{"index beyond pool", `{"7":false}`, []string{"a", "b", "c"}},
		{"non-bool values kept", `{"0":"yes","1":false}`, []string{"a", "c"}},
		{"falsy non-bools kept", `{"0":0,"1":null,"2":"false"}`, []string{"a", "b", "c"}},
		{"nested values kept", `{"0":{"on":false},"2":false}`, []string{"a", "b"}},
		{"null document", `null`, []string{"a", "b", "c"}},
		{"malformed", `{bad json`, []string{"a", "b", "c"}},
		{"wrong shape", `[1,2,3]`, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newFilter(t, tc.raw).Apply(context.Background(), pool)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestApply_StoreErrorFailsOpen(t *testing.T) {
	f := New(failingStore{}, nil)
	got := f.Apply(context.Background(), []string{"a", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected unfiltered pool, got %v", got)
	}
}

func TestSource(t *testing.T) {
	f := newFilter(t, `{"0":false}`)
	src := f.Source(func() []string { return []string{"a", "b"} })
	if got := src(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("expected [b], got %v", got)
	}
	if got := f.Source(nil)(); len(got) != 0 {
		t.Fatalf("expected empty pool from nil source, got %v", got)
	}
}

func TestSaveThenLoad(t *testing.T) {
	f := newFilter(t, "")
	ctx := context.Background()

	m, err := f.Load(ctx)
	if err != nil || len(m) != 0 {
		t.Fatalf("expected empty map, got %v err=%v", m, err)
	}
	if err := f.Save(ctx, map[string]bool{"0": true, "1": false}); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err = f.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(m, map[string]bool{"0": true, "1": false}) {
		t.Fatalf("unexpected map %v", m)
	}
	if got := f.Apply(ctx, []string{"x", "y"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("expected saved map to filter, got %v", got)
	}
}

func TestLoad_SkipsNonBoolValues(t *testing.T) {
	m, err := newFilter(t, `{"0":"yes","1":false,"2":true}`).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(m, map[string]bool{"1": false, "2": true}) {
		t.Fatalf("unexpected map %v", m)
	}
}

func TestLoad_Malformed(t *testing.T) {
	m, err := newFilter(t, "{nope").Load(context.Background())
	if err != nil || len(m) != 0 {
		t.Fatalf("expected empty map for malformed state, got %v err=%v", m, err)
	}
}

func TestStoreErrors(t *testing.T) {
	f := New(failingStore{}, nil)
	if _, err := f.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if err := f.Save(context.Background(), nil); err == nil {
		t.Fatal("expected save error")
	}
}
