package favorites

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Repository stores a customer's favorite product ids in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, customerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id
		FROM favorites
		WHERE customer_id = $1
		ORDER BY created_at
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *Repository) Add(ctx context.Context, customerID, productID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO favorites (customer_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (customer_id, product_id) DO NOTHING
	`, customerID, productID)
	return err
}

func (r *Repository) Remove(ctx context.Context, customerID, productID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM favorites
		WHERE customer_id = $1 AND product_id = $2
	`, customerID, productID)
	return err
}

// Replace overwrites the stored set with the given ids in one transaction.
// Used when resyncing a fallback set into the primary store.
func (r *Repository) Replace(ctx context.Context, customerID string, productIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE customer_id = $1`, customerID); err != nil {
		return err
	}

	for _, id := range productIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO favorites (customer_id, product_id) VALUES ($1, $2)
		`, customerID, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FallbackStore keeps favorites in a Redis set when the primary store is
// unreachable, and holds guest favorites outright.
type FallbackStore struct {
	client *redis.Client
}

func NewFallbackStore(client *redis.Client) *FallbackStore {
	return &FallbackStore{client: client}
}

func favoritesKey(customerID string) string {
	return fmt.Sprintf("favorites:%s", customerID)
}

func pendingKey(customerID string) string {
	return fmt.Sprintf("favorites:pending:%s", customerID)
}

func (s *FallbackStore) List(ctx context.Context, customerID string) ([]string, error) {
	return s.client.SMembers(ctx, favoritesKey(customerID)).Result()
}

func (s *FallbackStore) Add(ctx context.Context, customerID, productID string) error {
	return s.client.SAdd(ctx, favoritesKey(customerID), productID).Err()
}

func (s *FallbackStore) Remove(ctx context.Context, customerID, productID string) error {
	return s.client.SRem(ctx, favoritesKey(customerID), productID).Err()
}

func (s *FallbackStore) Replace(ctx context.Context, customerID string, productIDs []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, favoritesKey(customerID))
	if len(productIDs) > 0 {
		members := make([]any, len(productIDs))
		for i, id := range productIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, favoritesKey(customerID), members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// MarkPending flags the fallback set as ahead of the primary store.
func (s *FallbackStore) MarkPending(ctx context.Context, customerID string) error {
	return s.client.Set(ctx, pendingKey(customerID), "1", 0).Err()
}

func (s *FallbackStore) IsPending(ctx context.Context, customerID string) (bool, error) {
	n, err := s.client.Exists(ctx, pendingKey(customerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *FallbackStore) ClearPending(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, pendingKey(customerID)).Err()
}
