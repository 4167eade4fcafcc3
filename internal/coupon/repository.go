package coupon

import (
	"context"
	"database/sql"
	"errors"

	"github.com/omarselim/souq-storefront/internal/domain"
)

var (
	ErrNotFound     = errors.New("coupon not found")
	ErrExhausted    = errors.New("coupon fully consumed")
	ErrInvalidValue = errors.New("invalid discount value")
	ErrAlreadyUsed  = errors.New("coupon already used")
)

// RejectionMessage maps a validation rejection to a customer-facing message.
// The second result is false for errors that are not rejections, such as a
// store outage.
func RejectionMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNotFound):
		return "coupon code is not valid", true
	case errors.Is(err, ErrExhausted):
		return "coupon has reached its usage limit", true
	case errors.Is(err, ErrInvalidValue):
		return "coupon is misconfigured", true
	case errors.Is(err, ErrAlreadyUsed):
		return "coupon was already used on a previous order", true
	}
	return "", false
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByCode looks up an active coupon by its case-insensitive code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c := &domain.Coupon{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, type, value, active, usage_count, usage_limit
		FROM coupons
		WHERE UPPER(code) = UPPER($1) AND active
	`, code).Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.Active, &c.UsageCount, &c.UsageLimit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return c, nil
}

func (r *Repository) ListActive(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, type, value, active, usage_count, usage_limit
		FROM coupons
		WHERE active
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var coupons []domain.Coupon
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.Active, &c.UsageCount, &c.UsageLimit); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return coupons, nil
}

// Reserve consumes one capacity unit of the coupon. The limit check and the
// increment execute as a single conditional UPDATE so concurrent checkouts
// cannot both pass a stale pre-flight read; this is the only statement in the
// system that writes usage_count.
func (r *Repository) Reserve(ctx context.Context, couponID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE id = $1 AND active AND (usage_limit = 0 OR usage_count < usage_limit)
	`, couponID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1 AND active)
		`, couponID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrExhausted
	}

	return nil
}
