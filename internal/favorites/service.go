package favorites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omarselim/souq-storefront/internal/identity"
)

// Store is a favorites set keyed by customer id.
type Store interface {
	List(ctx context.Context, customerID string) ([]string, error)
	Add(ctx context.Context, customerID, productID string) error
	Remove(ctx context.Context, customerID, productID string) error
	Replace(ctx context.Context, customerID string, productIDs []string) error
}

// Fallback is the advisory store used for guests and primary-store outages.
type Fallback interface {
	Store
	MarkPending(ctx context.Context, customerID string) error
	IsPending(ctx context.Context, customerID string) (bool, error)
	ClearPending(ctx context.Context, customerID string) error
}

// Service keeps favorites in the primary store, degrading writes to the
// fallback set when the primary is down and resyncing opportunistically on
// the next read.
type Service struct {
	primary  Store
	fallback Fallback
	logger   *slog.Logger
}

func NewService(primary Store, fallback Fallback, logger *slog.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, logger: logger}
}

func (s *Service) List(ctx context.Context, customerID string) ([]string, error) {
	if identity.IsGuest(customerID) {
		return s.fallback.List(ctx, customerID)
	}

	pending, err := s.fallback.IsPending(ctx, customerID)
	if err != nil {
		s.logger.Warn("failed to check favorites pending flag", "error", err, "customer_id", customerID)
		pending = false
	}

	if pending {
		ids, err := s.fallback.List(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := s.primary.Replace(ctx, customerID, ids); err != nil {
			s.logger.Warn("favorites resync failed, serving fallback set", "error", err, "customer_id", customerID)
			return ids, nil
		}
		if err := s.fallback.ClearPending(ctx, customerID); err != nil {
			s.logger.Warn("failed to clear favorites pending flag", "error", err, "customer_id", customerID)
		}
		return ids, nil
	}

	ids, err := s.primary.List(ctx, customerID)
	if err != nil {
		s.logger.Warn("primary favorites read failed, falling back", "error", err, "customer_id", customerID)
		return s.fallback.List(ctx, customerID)
	}
	return ids, nil
}

func (s *Service) Add(ctx context.Context, customerID, productID string) error {
	return s.write(ctx, customerID, productID, true)
}

func (s *Service) Remove(ctx context.Context, customerID, productID string) error {
	return s.write(ctx, customerID, productID, false)
}

func (s *Service) write(ctx context.Context, customerID, productID string, add bool) error {
	op := func(store Store) error {
		if add {
			return store.Add(ctx, customerID, productID)
		}
		return store.Remove(ctx, customerID, productID)
	}

	if identity.IsGuest(customerID) {
		return op(s.fallback)
	}

	if err := op(s.primary); err != nil {
		s.logger.Warn("primary favorites write failed, degrading to fallback", "error", err, "customer_id", customerID)

		// Seed the fallback with the last known primary set so the pending
		// resync does not clobber older favorites.
		if ids, lerr := s.primary.List(ctx, customerID); lerr == nil {
			if rerr := s.fallback.Replace(ctx, customerID, ids); rerr != nil {
				s.logger.Warn("failed to seed favorites fallback", "error", rerr, "customer_id", customerID)
			}
		}

		if ferr := op(s.fallback); ferr != nil {
			return fmt.Errorf("favorites write failed on both stores: %w", errors.Join(err, ferr))
		}
		if perr := s.fallback.MarkPending(ctx, customerID); perr != nil {
			s.logger.Warn("failed to mark favorites pending", "error", perr, "customer_id", customerID)
		}
		return nil
	}

	// Mirror for fallback reads.
	if err := op(s.fallback); err != nil {
		s.logger.Warn("failed to mirror favorites write", "error", err, "customer_id", customerID)
	}
	return nil
}
