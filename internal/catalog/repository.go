package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/omarselim/souq-storefront/internal/domain"
)

// Repository reads the product catalog. Writes happen through the back-office
// tooling, so the storefront only ever queries.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetProduct returns the product by id, or nil when it does not exist or is
// no longer active.
func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	var variants []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, category_id, price, discount, deposit, image_url, active, variants
		FROM products
		WHERE id = $1 AND active = true
	`, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Discount, &p.Deposit, &p.ImageURL, &p.Active, &variants)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return nil, fmt.Errorf("decode variants for product %s: %w", p.ID, err)
	}

	return p, nil
}

// ListProducts returns active products, optionally filtered by category.
func (r *Repository) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	query := `
		SELECT id, name, category_id, price, discount, deposit, image_url, active, variants
		FROM products
		WHERE active = true
	`
	args := []any{}
	if categoryID != "" {
		query += ` AND category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var variants []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Discount, &p.Deposit, &p.ImageURL, &p.Active, &variants); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(variants, &p.Variants); err != nil {
			return nil, fmt.Errorf("decode variants for product %s: %w", p.ID, err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

// GetProducts loads a batch of products keyed by id. Missing or inactive ids
// are simply absent from the result.
func (r *Repository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := r.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products[p.ID] = *p
		}
	}
	return products, nil
}
