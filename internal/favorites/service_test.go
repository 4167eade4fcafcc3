package favorites

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
)

type fakeSet struct {
	sets     map[string][]string
	writeErr error
	listErr  error
}

func newFakeSet() *fakeSet {
	return &fakeSet{sets: make(map[string][]string)}
}

func (f *fakeSet) List(_ context.Context, customerID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sets[customerID], nil
}

func (f *fakeSet) Add(_ context.Context, customerID, productID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if !slices.Contains(f.sets[customerID], productID) {
		f.sets[customerID] = append(f.sets[customerID], productID)
	}
	return nil
}

func (f *fakeSet) Remove(_ context.Context, customerID, productID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sets[customerID] = slices.DeleteFunc(f.sets[customerID], func(id string) bool {
		return id == productID
	})
	return nil
}

func (f *fakeSet) Replace(_ context.Context, customerID string, productIDs []string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sets[customerID] = slices.Clone(productIDs)
	return nil
}

type fakeFallback struct {
	fakeSet
	pending map[string]bool
}

func newFakeFallback() *fakeFallback {
	return &fakeFallback{
		fakeSet: fakeSet{sets: make(map[string][]string)},
		pending: make(map[string]bool),
	}
}

func (f *fakeFallback) MarkPending(_ context.Context, customerID string) error {
	f.pending[customerID] = true
	return nil
}

func (f *fakeFallback) IsPending(_ context.Context, customerID string) (bool, error) {
	return f.pending[customerID], nil
}

func (f *fakeFallback) ClearPending(_ context.Context, customerID string) error {
	delete(f.pending, customerID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("writes hit both stores", func(t *testing.T) {
		primary := newFakeSet()
		fallback := newFakeFallback()
		svc := NewService(primary, fallback, testLogger())

		if err := svc.Add(ctx, "user-1", "p-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Contains(primary.sets["user-1"], "p-1") {
			t.Errorf("expected favorite in primary store")
		}
		if !slices.Contains(fallback.sets["user-1"], "p-1") {
			t.Errorf("expected favorite mirrored to fallback")
		}
	})

	t.Run("guest writes stay in fallback", func(t *testing.T) {
		primary := newFakeSet()
		fallback := newFakeFallback()
		svc := NewService(primary, fallback, testLogger())

		if err := svc.Add(ctx, "guest:device-3", "p-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(primary.sets) != 0 {
			t.Errorf("expected no primary writes for guest")
		}
		if !slices.Contains(fallback.sets["guest:device-3"], "p-1") {
			t.Errorf("expected guest favorite in fallback")
		}
	})

	t.Run("primary outage degrades and marks pending", func(t *testing.T) {
		primary := newFakeSet()
		primary.writeErr = errors.New("connection refused")
		primary.listErr = primary.writeErr
		fallback := newFakeFallback()
		svc := NewService(primary, fallback, testLogger())

		if err := svc.Add(ctx, "user-1", "p-1"); err != nil {
			t.Fatalf("expected degraded write to succeed, got %v", err)
		}

		if !fallback.pending["user-1"] {
			t.Errorf("expected pending flag after degraded write")
		}
		if !slices.Contains(fallback.sets["user-1"], "p-1") {
			t.Errorf("expected favorite in fallback")
		}
	})
}

func TestServiceList(t *testing.T) {
	ctx := context.Background()

	t.Run("pending set resyncs into primary", func(t *testing.T) {
		primary := newFakeSet()
		fallback := newFakeFallback()
		fallback.sets["user-1"] = []string{"p-1", "p-2"}
		fallback.pending["user-1"] = true
		svc := NewService(primary, fallback, testLogger())

		ids, err := svc.List(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("expected 2 favorites, got %d", len(ids))
		}
		if len(primary.sets["user-1"]) != 2 {
			t.Errorf("expected resync into primary store")
		}
		if fallback.pending["user-1"] {
			t.Errorf("expected pending flag cleared")
		}
	})

	t.Run("primary read failure falls back", func(t *testing.T) {
		primary := newFakeSet()
		primary.listErr = errors.New("connection refused")
		fallback := newFakeFallback()
		fallback.sets["user-1"] = []string{"p-1"}
		svc := NewService(primary, fallback, testLogger())

		ids, err := svc.List(ctx, "user-1")
		if err != nil {
			t.Fatalf("expected fallback read, got %v", err)
		}
		if len(ids) != 1 {
			t.Errorf("expected fallback favorites, got %v", ids)
		}
	})
}
