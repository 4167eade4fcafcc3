package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omarselim/souq-storefront/internal/domain"
)

// refreshWindow is how long a mirror refresh is considered fresh per identity.
const refreshWindow = 5 * time.Minute

// Mirror is the per-identity cache of remote coupon state: a refresh stamp
// that throttles full re-reads, and a snapshot of codes the identity has had
// accepted. The snapshot is a UI optimization only; every state-changing
// operation re-validates against the authoritative store.
type Mirror struct {
	client *redis.Client
}

func NewMirror(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

func refreshKey(customerID string) string {
	return fmt.Sprintf("coupon:refreshed:%s", customerID)
}

func acceptedKey(customerID string) string {
	return fmt.Sprintf("coupon:accepted:%s", customerID)
}

// Fresh reports whether the identity's mirror was refreshed within the
// staleness window.
func (m *Mirror) Fresh(ctx context.Context, customerID string) (bool, error) {
	n, err := m.client.Exists(ctx, refreshKey(customerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stamp records a completed refresh for the identity.
func (m *Mirror) Stamp(ctx context.Context, customerID string) error {
	return m.client.Set(ctx, refreshKey(customerID), time.Now().Unix(), refreshWindow).Err()
}

// Invalidate forces the next validation to re-read remote state. Called after
// every reservation attempt.
func (m *Mirror) Invalidate(ctx context.Context, customerID string) error {
	return m.client.Del(ctx, refreshKey(customerID)).Err()
}

// SaveAccepted stores the validated coupon snapshot for the identity.
func (m *Mirror) SaveAccepted(ctx context.Context, customerID string, c domain.Coupon) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return m.client.HSet(ctx, acceptedKey(customerID), c.Code, data).Err()
}

// Accepted returns the cached snapshot for the code, or nil when none is
// cached. Reading it never touches the authoritative store.
func (m *Mirror) Accepted(ctx context.Context, customerID, code string) (*domain.Coupon, error) {
	data, err := m.client.HGet(ctx, acceptedKey(customerID), code).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c domain.Coupon
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DropAccepted removes the code from the identity's snapshot, after a
// rejection or a redemption.
func (m *Mirror) DropAccepted(ctx context.Context, customerID, code string) error {
	return m.client.HDel(ctx, acceptedKey(customerID), code).Err()
}
