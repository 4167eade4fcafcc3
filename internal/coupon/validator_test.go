package coupon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/omarselim/souq-storefront/internal/domain"
)

type fakeSource struct {
	coupons     map[string]domain.Coupon
	listCalls   int
	reserveErr  error
	reservedIDs []string
}

func (f *fakeSource) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	for _, c := range f.coupons {
		if Canonical(c.Code) == Canonical(code) && c.Active {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) ListActive(_ context.Context) ([]domain.Coupon, error) {
	f.listCalls++
	var out []domain.Coupon
	for _, c := range f.coupons {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) Reserve(_ context.Context, couponID string) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reservedIDs = append(f.reservedIDs, couponID)
	return nil
}

type fakeCache struct {
	fresh        bool
	stamped      int
	invalidated  int
	accepted     map[string]domain.Coupon
	droppedCodes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{accepted: make(map[string]domain.Coupon)}
}

func (f *fakeCache) Fresh(_ context.Context, _ string) (bool, error) { return f.fresh, nil }

func (f *fakeCache) Stamp(_ context.Context, _ string) error {
	f.stamped++
	f.fresh = true
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, _ string) error {
	f.invalidated++
	f.fresh = false
	return nil
}

func (f *fakeCache) SaveAccepted(_ context.Context, _ string, c domain.Coupon) error {
	f.accepted[c.Code] = c
	return nil
}

func (f *fakeCache) Accepted(_ context.Context, _, code string) (*domain.Coupon, error) {
	if c, ok := f.accepted[code]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCache) DropAccepted(_ context.Context, _, code string) error {
	delete(f.accepted, code)
	f.droppedCodes = append(f.droppedCodes, code)
	return nil
}

type fakeLedger struct {
	used   map[string]bool
	pruned [][]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{used: make(map[string]bool)}
}

func (f *fakeLedger) MarkUsed(_ context.Context, _, code string) error {
	f.used[code] = true
	return nil
}

func (f *fakeLedger) IsUsed(_ context.Context, _, code string) (bool, error) {
	return f.used[code], nil
}

func (f *fakeLedger) Prune(_ context.Context, _ string, activeCodes []string) error {
	f.pruned = append(f.pruned, activeCodes)
	for code := range f.used {
		found := false
		for _, active := range activeCodes {
			if active == code {
				found = true
			}
		}
		if !found {
			delete(f.used, code)
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()

	newValidator := func(source *fakeSource) (*Validator, *fakeCache, *fakeLedger) {
		cache := newFakeCache()
		ldg := newFakeLedger()
		return NewValidator(source, cache, ldg, testLogger()), cache, ldg
	}

	t.Run("accepts a valid coupon", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true, UsageLimit: 5},
		}}
		v, _, _ := newValidator(source)

		c, err := v.Validate(ctx, "save10", "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ID != "c1" {
			t.Errorf("expected coupon c1, got %s", c.ID)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		v, _, _ := newValidator(&fakeSource{coupons: map[string]domain.Coupon{}})

		if _, err := v.Validate(ctx, "NOPE", "user-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("inactive coupon is not found", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "OLD", Type: domain.CouponTypeFlat, Value: 20, Active: false},
		}}
		v, _, _ := newValidator(source)

		if _, err := v.Validate(ctx, "OLD", "user-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("exhaustion reported before bad value", func(t *testing.T) {
		// Both checks fail here; exhaustion must win.
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "BROKEN", Type: domain.CouponTypePercentage, Value: 150, Active: true, UsageCount: 3, UsageLimit: 3},
		}}
		v, _, _ := newValidator(source)

		if _, err := v.Validate(ctx, "BROKEN", "user-1"); !errors.Is(err, ErrExhausted) {
			t.Errorf("expected ErrExhausted, got %v", err)
		}
	})

	t.Run("percentage out of range", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "BAD", Type: domain.CouponTypePercentage, Value: 0, Active: true},
		}}
		v, _, _ := newValidator(source)

		if _, err := v.Validate(ctx, "BAD", "user-1"); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("expected ErrInvalidValue, got %v", err)
		}
	})

	t.Run("already used by this identity", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "ONCE", Type: domain.CouponTypeFlat, Value: 20, Active: true},
		}}
		v, _, ldg := newValidator(source)
		_ = ldg.MarkUsed(ctx, "user-1", "ONCE")

		if _, err := v.Validate(ctx, "ONCE", "user-1"); !errors.Is(err, ErrAlreadyUsed) {
			t.Errorf("expected ErrAlreadyUsed, got %v", err)
		}
	})

	t.Run("refresh is throttled by the cache stamp", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true},
		}}
		v, cache, _ := newValidator(source)

		if _, err := v.Validate(ctx, "SAVE10", "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := v.Validate(ctx, "SAVE10", "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if source.listCalls != 1 {
			t.Errorf("expected 1 remote list, got %d", source.listCalls)
		}
		if cache.stamped != 1 {
			t.Errorf("expected 1 stamp, got %d", cache.stamped)
		}
	})

	t.Run("refresh prunes ledger entries for deleted coupons", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "KEEP", Type: domain.CouponTypeFlat, Value: 20, Active: true},
		}}
		v, _, ldg := newValidator(source)
		_ = ldg.MarkUsed(ctx, "user-1", "GONE")
		_ = ldg.MarkUsed(ctx, "user-1", "KEEP")

		if _, err := v.Validate(ctx, "KEEP", "user-1"); !errors.Is(err, ErrAlreadyUsed) {
			t.Fatalf("expected ErrAlreadyUsed for KEEP, got %v", err)
		}
		if ldg.used["GONE"] {
			t.Error("expected GONE to be pruned from the ledger")
		}
	})
}

func TestValidator_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("caches accepted snapshot", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{
			"c1": {ID: "c1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true},
		}}
		cache := newFakeCache()
		v := NewValidator(source, cache, newFakeLedger(), testLogger())

		if _, err := v.Apply(ctx, "save10", "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := cache.accepted["SAVE10"]; !ok {
			t.Error("expected SAVE10 snapshot to be cached")
		}
	})

	t.Run("drops snapshot on rejection", func(t *testing.T) {
		source := &fakeSource{coupons: map[string]domain.Coupon{}}
		cache := newFakeCache()
		cache.accepted["STALE"] = domain.Coupon{Code: "STALE"}
		v := NewValidator(source, cache, newFakeLedger(), testLogger())

		if _, err := v.Apply(ctx, "STALE", "user-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, ok := cache.accepted["STALE"]; ok {
			t.Error("expected stale snapshot to be dropped")
		}
	})
}

func TestValidator_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("invalidates mirror on success and failure", func(t *testing.T) {
		c := &domain.Coupon{ID: "c1", Code: "SAVE10"}

		source := &fakeSource{}
		cache := newFakeCache()
		v := NewValidator(source, cache, newFakeLedger(), testLogger())

		if err := v.Reserve(ctx, "user-1", c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		source.reserveErr = ErrExhausted
		if err := v.Reserve(ctx, "user-1", c); !errors.Is(err, ErrExhausted) {
			t.Fatalf("expected ErrExhausted, got %v", err)
		}

		if cache.invalidated != 2 {
			t.Errorf("expected 2 invalidations, got %d", cache.invalidated)
		}
	})
}
