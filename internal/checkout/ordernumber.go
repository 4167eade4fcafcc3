package checkout

import (
	"context"
	"database/sql"
	"fmt"
)

// NumberAllocator hands out sequential, human-readable order numbers from a
// counter row. Allocation failure fails the checkout: an order without a real
// number is worse than no order.
type NumberAllocator struct {
	db *sql.DB
}

func NewNumberAllocator(db *sql.DB) *NumberAllocator {
	return &NumberAllocator{db: db}
}

func (a *NumberAllocator) Next(ctx context.Context) (int64, error) {
	var value int64
	err := a.db.QueryRowContext(ctx, `
		UPDATE counters SET value = value + 1
		WHERE name = 'order_number'
		RETURNING value
	`).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("allocate order number: %w", err)
	}
	return value, nil
}
