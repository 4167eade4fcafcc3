package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omarselim/souq-storefront/internal/domain"
)

// sessionTTL bounds how long an abandoned checkout session lingers.
const sessionTTL = 24 * time.Hour

// Session is the durable view of an in-flight checkout.
type Session struct {
	State         State                `json:"state"`
	Shipping      domain.ShippingInfo  `json:"shipping"`
	CouponCode    string               `json:"coupon_code,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	OrderID       string               `json:"order_id,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// SessionStore persists checkout sessions and the per-identity cooldown stamp.
type SessionStore interface {
	Load(ctx context.Context, customerID string) (*Session, error)
	Save(ctx context.Context, customerID string, s Session) error
	Delete(ctx context.Context, customerID string) error
	LastCheckout(ctx context.Context, customerID string) (time.Time, error)
	StampCheckout(ctx context.Context, customerID string, at time.Time) error
}

// RedisSessionStore keeps sessions in Redis. Losing one only sends the
// customer back to the start of checkout; nothing authoritative lives here.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(customerID string) string {
	return fmt.Sprintf("checkout:session:%s", customerID)
}

func cooldownKey(customerID string) string {
	return fmt.Sprintf("checkout:last:%s", customerID)
}

func (s *RedisSessionStore) Load(ctx context.Context, customerID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(customerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, customerID string, session Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(customerID), data, sessionTTL).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, sessionKey(customerID)).Err()
}

func (s *RedisSessionStore) LastCheckout(ctx context.Context, customerID string) (time.Time, error) {
	value, err := s.client.Get(ctx, cooldownKey(customerID)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(value), nil
}

func (s *RedisSessionStore) StampCheckout(ctx context.Context, customerID string, at time.Time) error {
	return s.client.Set(ctx, cooldownKey(customerID), at.UnixMilli(), 0).Err()
}
