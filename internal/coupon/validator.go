package coupon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/ledger"
)

// Source is the authoritative coupon store.
type Source interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListActive(ctx context.Context) ([]domain.Coupon, error)
	Reserve(ctx context.Context, couponID string) error
}

// Cache is the per-identity mirror of remote coupon state.
type Cache interface {
	Fresh(ctx context.Context, customerID string) (bool, error)
	Stamp(ctx context.Context, customerID string) error
	Invalidate(ctx context.Context, customerID string) error
	SaveAccepted(ctx context.Context, customerID string, c domain.Coupon) error
	Accepted(ctx context.Context, customerID, code string) (*domain.Coupon, error)
	DropAccepted(ctx context.Context, customerID, code string) error
}

type Validator struct {
	source Source
	cache  Cache
	ledger ledger.Store
	logger *slog.Logger
}

func NewValidator(source Source, cache Cache, ledgerStore ledger.Store, logger *slog.Logger) *Validator {
	return &Validator{
		source: source,
		cache:  cache,
		ledger: ledgerStore,
		logger: logger,
	}
}

// Canonical returns the canonical form of a coupon code.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a candidate code for an identity, in strict order: mirror
// refresh (throttled), existence among active coupons, exhaustion, value
// sanity, then the identity's usage ledger. Exhaustion is reported before a
// bad percentage value on purpose. The returned coupon is the authoritative
// record, never a cached copy.
func (v *Validator) Validate(ctx context.Context, code, customerID string) (*domain.Coupon, error) {
	code = Canonical(code)

	if err := v.refresh(ctx, customerID); err != nil {
		return nil, fmt.Errorf("refresh coupon mirror: %w", err)
	}

	c, err := v.source.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("look up coupon: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrExhausted
	}

	if c.Type == domain.CouponTypePercentage && (c.Value < 1 || c.Value > 100) {
		return nil, ErrInvalidValue
	}

	used, err := v.ledger.IsUsed(ctx, customerID, code)
	if err != nil {
		return nil, fmt.Errorf("check usage ledger: %w", err)
	}
	if used {
		return nil, ErrAlreadyUsed
	}

	return c, nil
}

// Apply validates the code and, on success, caches the accepted snapshot for
// the identity so the cart can display the discount without re-reading the
// remote store. On rejection any stale snapshot for the code is dropped.
func (v *Validator) Apply(ctx context.Context, code, customerID string) (*domain.Coupon, error) {
	code = Canonical(code)

	c, err := v.Validate(ctx, code, customerID)
	if err != nil {
		if derr := v.cache.DropAccepted(ctx, customerID, code); derr != nil {
			v.logger.Warn("failed to drop rejected coupon snapshot", "error", derr, "code", code)
		}
		return nil, err
	}

	if err := v.cache.SaveAccepted(ctx, customerID, *c); err != nil {
		v.logger.Warn("failed to cache accepted coupon", "error", err, "code", code)
	}

	return c, nil
}

// Forget drops the identity's accepted snapshot for a code, once the coupon
// has been consumed or the checkout abandoned.
func (v *Validator) Forget(ctx context.Context, customerID, code string) error {
	return v.cache.DropAccepted(ctx, customerID, Canonical(code))
}

// Reserve consumes one capacity unit through the authoritative store and
// invalidates the identity's mirror regardless of outcome, so the next
// validation observes the post-reservation state.
func (v *Validator) Reserve(ctx context.Context, customerID string, c *domain.Coupon) error {
	err := v.source.Reserve(ctx, c.ID)

	if ierr := v.cache.Invalidate(ctx, customerID); ierr != nil {
		v.logger.Warn("failed to invalidate coupon mirror", "error", ierr, "customer_id", customerID)
	}

	return err
}

// refresh re-reads active coupons at most once per staleness window and
// prunes ledger entries referencing codes that no longer exist.
func (v *Validator) refresh(ctx context.Context, customerID string) error {
	fresh, err := v.cache.Fresh(ctx, customerID)
	if err != nil {
		return err
	}
	if fresh {
		return nil
	}

	active, err := v.source.ListActive(ctx)
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(active))
	for _, c := range active {
		codes = append(codes, Canonical(c.Code))
	}

	if err := v.ledger.Prune(ctx, customerID, codes); err != nil {
		return err
	}

	if err := v.cache.Stamp(ctx, customerID); err != nil {
		v.logger.Warn("failed to stamp coupon refresh", "error", err, "customer_id", customerID)
	}

	return nil
}
