package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/omarselim/souq-storefront/internal/domain"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrNotCancellable = errors.New("order can no longer be cancelled")
	ErrProofClosed    = errors.New("order is not waiting for payment")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create persists the order and its priced items in one transaction. The
// caller has already allocated the order number and computed totals.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, subtotal, total, coupon_code,
			required_deposit, payment_method, status,
			shipping_full_name, shipping_phone, shipping_second_phone,
			shipping_address, shipping_landmark, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, order.ID, order.OrderNumber, order.CustomerID, order.Subtotal, order.Total,
		order.CouponCode, order.RequiredDeposit, order.PaymentMethod, order.Status,
		order.Shipping.FullName, order.Shipping.PhoneNumber, order.Shipping.SecondPhone,
		order.Shipping.Address, order.Shipping.Landmark, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, name, variant_name, image_url,
				quantity, list_price, discount, actual_price
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New().String(), order.ID, item.ProductID, item.Name, item.VariantName,
			item.ImageURL, item.Quantity, item.ListPrice, item.Discount, item.ActualPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID returns the customer's order, or nil when no such order belongs to
// this customer. Scoping by customer keeps one customer from reading another's
// orders by guessing ids.
func (r *Repository) GetByID(ctx context.Context, customerID, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_id, subtotal, total, coupon_code,
		       required_deposit, payment_method, status,
		       shipping_full_name, shipping_phone, shipping_second_phone,
		       shipping_address, shipping_landmark,
		       payment_proof_url, proof_uploaded_at, created_at
		FROM orders
		WHERE id = $1 AND customer_id = $2
	`, id, customerID).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.Subtotal, &order.Total,
		&order.CouponCode, &order.RequiredDeposit, &order.PaymentMethod, &order.Status,
		&order.Shipping.FullName, &order.Shipping.PhoneNumber, &order.Shipping.SecondPhone,
		&order.Shipping.Address, &order.Shipping.Landmark,
		&order.PaymentProofURL, &order.ProofUploadedAt, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, variant_name, image_url, quantity, list_price, discount, actual_price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.VariantName, &item.ImageURL,
			&item.Quantity, &item.ListPrice, &item.Discount, &item.ActualPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByCustomer returns the customer's orders, newest first, with items
// loaded in a single batch query.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, customer_id, subtotal, total, coupon_code,
		       required_deposit, payment_method, status,
		       payment_proof_url, proof_uploaded_at, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.Subtotal,
			&order.Total, &order.CouponCode, &order.RequiredDeposit, &order.PaymentMethod,
			&order.Status, &order.PaymentProofURL, &order.ProofUploadedAt, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, variant_name, image_url, quantity, list_price, discount, actual_price
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Name, &item.VariantName,
			&item.ImageURL, &item.Quantity, &item.ListPrice, &item.Discount, &item.ActualPrice); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// Cancel moves the order to cancelled, but only while it is still in review.
// The conditional update makes the window check atomic with the transition.
func (r *Repository) Cancel(ctx context.Context, customerID, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND customer_id = $3 AND status = $4
	`, domain.OrderStatusCancelled, id, customerID, domain.OrderStatusReview)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1 AND customer_id = $2)
	`, id, customerID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotCancellable
}

// AttachPaymentProof records the uploaded transfer screenshot, allowed only
// while the order is waiting for payment.
func (r *Repository) AttachPaymentProof(ctx context.Context, customerID, id, proofURL string, uploadedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_proof_url = $1, proof_uploaded_at = $2, updated_at = NOW()
		WHERE id = $3 AND customer_id = $4 AND status = $5
	`, proofURL, uploadedAt, id, customerID, domain.OrderStatusWaitingPayment)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1 AND customer_id = $2)
	`, id, customerID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrProofClosed
}
