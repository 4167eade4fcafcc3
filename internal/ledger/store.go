package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store records which coupon codes an identity has already redeemed. Entries
// are advisory: they are scoped to whatever identity store the client reaches,
// so the remote usage limit stays the real enforcement boundary.
type Store interface {
	MarkUsed(ctx context.Context, customerID, code string) error
	IsUsed(ctx context.Context, customerID, code string) (bool, error)
	// Prune drops entries whose code no longer appears among the active
	// coupons. A deleted coupon is treated as an implicit forgive.
	Prune(ctx context.Context, customerID string, activeCodes []string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func usedKey(customerID string) string {
	return fmt.Sprintf("coupons:used:%s", customerID)
}

func (s *RedisStore) MarkUsed(ctx context.Context, customerID, code string) error {
	return s.client.HSet(ctx, usedKey(customerID), code, "1").Err()
}

func (s *RedisStore) IsUsed(ctx context.Context, customerID, code string) (bool, error) {
	err := s.client.HGet(ctx, usedKey(customerID), code).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Prune(ctx context.Context, customerID string, activeCodes []string) error {
	used, err := s.client.HKeys(ctx, usedKey(customerID)).Result()
	if err != nil {
		return err
	}

	active := make(map[string]bool, len(activeCodes))
	for _, code := range activeCodes {
		active[code] = true
	}

	var stale []string
	for _, code := range used {
		if !active[code] {
			stale = append(stale, code)
		}
	}

	if len(stale) == 0 {
		return nil
	}
	return s.client.HDel(ctx, usedKey(customerID), stale...).Err()
}
