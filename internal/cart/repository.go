package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/omarselim/souq-storefront/internal/domain"
)

// Repository persists authenticated customers' carts in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, variant_name, unit_price, quantity, image_url
		FROM cart_lines
		WHERE customer_id = $1
		ORDER BY position
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.VariantName, &line.UnitPrice, &line.Quantity, &line.ImageURL); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// Save replaces the customer's cart with the given lines in one transaction.
func (r *Repository) Save(ctx context.Context, customerID string, lines []domain.CartLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = $1`, customerID); err != nil {
		return err
	}

	for i, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_lines (customer_id, product_id, name, variant_name, unit_price, quantity, image_url, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, customerID, line.ProductID, line.Name, line.VariantName, line.UnitPrice, line.Quantity, line.ImageURL, i)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) Clear(ctx context.Context, customerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = $1`, customerID)
	return err
}

// CacheStore keeps guest carts and serves as the degraded fallback when the
// primary store is unreachable. Advisory only.
type CacheStore struct {
	client *redis.Client
}

func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

func cartKey(customerID string) string {
	return fmt.Sprintf("cart:%s", customerID)
}

func dirtyKey(customerID string) string {
	return fmt.Sprintf("cart:dirty:%s", customerID)
}

func (s *CacheStore) Get(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	data, err := s.client.Get(ctx, cartKey(customerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *CacheStore) Save(ctx context.Context, customerID string, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(customerID), data, 0).Err()
}

func (s *CacheStore) Clear(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, cartKey(customerID), dirtyKey(customerID)).Err()
}

// MarkDirty flags the cached cart as ahead of the primary store, so the next
// load attempts a resync.
func (s *CacheStore) MarkDirty(ctx context.Context, customerID string) error {
	return s.client.Set(ctx, dirtyKey(customerID), "1", 0).Err()
}

func (s *CacheStore) IsDirty(ctx context.Context, customerID string) (bool, error) {
	n, err := s.client.Exists(ctx, dirtyKey(customerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *CacheStore) ClearDirty(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, dirtyKey(customerID)).Err()
}
