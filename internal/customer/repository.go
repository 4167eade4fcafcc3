package customer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/omarselim/souq-storefront/internal/domain"
)

// Repository persists shipping profiles. Authenticated customers keep one
// profile row; guests keep theirs in Redis keyed by their device identity, so
// a returning guest is not retyping an address every visit.
type Repository struct {
	db    *sql.DB
	cache *redis.Client
}

func NewRepository(db *sql.DB, cache *redis.Client) *Repository {
	return &Repository{db: db, cache: cache}
}

func guestShippingKey(customerID string) string {
	return fmt.Sprintf("shipping:%s", customerID)
}

// GetShipping returns the saved shipping profile, or nil when none exists.
func (r *Repository) GetShipping(ctx context.Context, customerID string, guest bool) (*domain.ShippingInfo, error) {
	if guest {
		data, err := r.cache.Get(ctx, guestShippingKey(customerID)).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		info := &domain.ShippingInfo{}
		if err := json.Unmarshal(data, info); err != nil {
			return nil, err
		}
		return info, nil
	}

	info := &domain.ShippingInfo{}
	err := r.db.QueryRowContext(ctx, `
		SELECT full_name, phone_number, second_phone, address, landmark
		FROM shipping_profiles
		WHERE customer_id = $1
	`, customerID).Scan(&info.FullName, &info.PhoneNumber, &info.SecondPhone, &info.Address, &info.Landmark)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return info, nil
}

// SaveShipping upserts the shipping profile. The caller validates first.
func (r *Repository) SaveShipping(ctx context.Context, customerID string, guest bool, info domain.ShippingInfo) error {
	if guest {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return r.cache.Set(ctx, guestShippingKey(customerID), data, 0).Err()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipping_profiles (customer_id, full_name, phone_number, second_phone, address, landmark)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    phone_number = EXCLUDED.phone_number,
		    second_phone = EXCLUDED.second_phone,
		    address = EXCLUDED.address,
		    landmark = EXCLUDED.landmark,
		    updated_at = NOW()
	`, customerID, info.FullName, info.PhoneNumber, info.SecondPhone, info.Address, info.Landmark)
	return err
}
