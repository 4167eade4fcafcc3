package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/identity"
	"github.com/omarselim/souq-storefront/internal/pricing"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog is the read side of the product catalog the cart needs.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Store is the primary cart store for authenticated customers.
type Store interface {
	Get(ctx context.Context, customerID string) ([]domain.CartLine, error)
	Save(ctx context.Context, customerID string, lines []domain.CartLine) error
	Clear(ctx context.Context, customerID string) error
}

// Cache is the advisory store: guest carts and the degraded fallback.
type Cache interface {
	Store
	MarkDirty(ctx context.Context, customerID string) error
	IsDirty(ctx context.Context, customerID string) (bool, error)
	ClearDirty(ctx context.Context, customerID string) error
}

// Service owns a session's cart. Authenticated carts live in Postgres with
// the Redis cache as a degraded fallback; guest carts live in Redis only.
type Service struct {
	repo    Store
	cache   Cache
	catalog Catalog
	logger  *slog.Logger
}

func NewService(repo Store, cache Cache, catalog Catalog, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		logger:  logger,
	}
}

// Get loads the customer's cart. When a previous save degraded to the cache,
// the cached lines win and a resync into the primary store is attempted.
func (s *Service) Get(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	if identity.IsGuest(customerID) {
		return s.cache.Get(ctx, customerID)
	}

	dirty, err := s.cache.IsDirty(ctx, customerID)
	if err != nil {
		s.logger.Warn("failed to check cart dirty flag", "error", err, "customer_id", customerID)
		dirty = false
	}

	if dirty {
		lines, err := s.cache.Get(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, customerID, lines); err != nil {
			s.logger.Warn("cart resync failed, serving cached cart", "error", err, "customer_id", customerID)
			return lines, nil
		}
		if err := s.cache.ClearDirty(ctx, customerID); err != nil {
			s.logger.Warn("failed to clear cart dirty flag", "error", err, "customer_id", customerID)
		}
		return lines, nil
	}

	lines, err := s.repo.Get(ctx, customerID)
	if err != nil {
		s.logger.Warn("primary cart read failed, falling back to cache", "error", err, "customer_id", customerID)
		return s.cache.Get(ctx, customerID)
	}
	return lines, nil
}

// Add resolves the product's unit price once and freezes it into the line.
// Re-adding the same (product, variant) bumps the quantity instead of
// duplicating the line.
func (s *Service) Add(ctx context.Context, customerID, productID string, variantIndex int) ([]domain.CartLine, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if p == nil {
		return nil, ErrProductNotFound
	}

	resolved := pricing.Resolve(*p, variantIndex)

	lines, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range lines {
		if lines[i].ProductID == productID && lines[i].VariantName == resolved.VariantName {
			lines[i].Quantity++
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, domain.CartLine{
			ProductID:   productID,
			Name:        resolved.DisplayName,
			VariantName: resolved.VariantName,
			UnitPrice:   resolved.UnitPrice,
			Quantity:    1,
			ImageURL:    p.ImageURL,
		})
	}

	if err := s.save(ctx, customerID, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// AdjustQuantity changes a line's quantity by delta, removing the line when
// it drops to zero or below.
func (s *Service) AdjustQuantity(ctx context.Context, customerID, productID, variantName string, delta int) ([]domain.CartLine, error) {
	lines, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	out := lines[:0]
	for _, line := range lines {
		if line.ProductID == productID && line.VariantName == variantName {
			line.Quantity += delta
			if line.Quantity <= 0 {
				continue
			}
		}
		out = append(out, line)
	}

	if err := s.save(ctx, customerID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Remove(ctx context.Context, customerID, productID, variantName string) ([]domain.CartLine, error) {
	lines, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	out := lines[:0]
	for _, line := range lines {
		if line.ProductID == productID && line.VariantName == variantName {
			continue
		}
		out = append(out, line)
	}

	if err := s.save(ctx, customerID, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear empties the cart in both stores. Called after a successful checkout.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	if err := s.cache.Clear(ctx, customerID); err != nil {
		s.logger.Warn("failed to clear cached cart", "error", err, "customer_id", customerID)
	}
	if identity.IsGuest(customerID) {
		return nil
	}
	return s.repo.Clear(ctx, customerID)
}

// save writes the cart to the store owning this identity. A primary-store
// failure for an authenticated customer degrades to the cache so the customer
// is never blocked; the dirty flag schedules an opportunistic resync.
func (s *Service) save(ctx context.Context, customerID string, lines []domain.CartLine) error {
	if identity.IsGuest(customerID) {
		return s.cache.Save(ctx, customerID, lines)
	}

	if err := s.repo.Save(ctx, customerID, lines); err != nil {
		s.logger.Warn("primary cart save failed, degrading to cache", "error", err, "customer_id", customerID)
		if cerr := s.cache.Save(ctx, customerID, lines); cerr != nil {
			return fmt.Errorf("cart save failed on both stores: %w", errors.Join(err, cerr))
		}
		if derr := s.cache.MarkDirty(ctx, customerID); derr != nil {
			s.logger.Warn("failed to mark cart dirty", "error", derr, "customer_id", customerID)
		}
		return nil
	}

	// Keep the cache coherent for fallback reads.
	if err := s.cache.Save(ctx, customerID, lines); err != nil {
		s.logger.Warn("failed to update cart cache", "error", err, "customer_id", customerID)
	}
	return nil
}
