package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omarselim/souq-storefront/internal/cart"
	"github.com/omarselim/souq-storefront/internal/coupon"
	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/ledger"
	"github.com/omarselim/souq-storefront/internal/pricing"
)

// checkoutCooldown is the minimum gap between two successful checkouts for
// one identity. Blocks accidental double-submits and cheap scripted spam.
const checkoutCooldown = 60 * time.Second

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCooldown          = errors.New("an order was just placed, wait a moment before ordering again")
	ErrBadState          = errors.New("checkout is not at this step")
	ErrInvalidMethod     = errors.New("unknown payment method")
	ErrMethodUnavailable = errors.New("payment method is currently unavailable")
	ErrCashDisabled      = errors.New("cash is not available for orders requiring a deposit")
)

// CartAccess is the slice of the cart service checkout needs.
type CartAccess interface {
	Get(ctx context.Context, customerID string) ([]domain.CartLine, error)
	Clear(ctx context.Context, customerID string) error
}

// ProductSource loads products in bulk for deposit and pricing detail.
type ProductSource interface {
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CouponGate is the validator surface checkout drives.
type CouponGate interface {
	Validate(ctx context.Context, code, customerID string) (*domain.Coupon, error)
	Reserve(ctx context.Context, customerID string, c *domain.Coupon) error
	Forget(ctx context.Context, customerID, code string) error
}

// OrderStore persists completed orders.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
}

// NumberSource allocates order numbers.
type NumberSource interface {
	Next(ctx context.Context) (int64, error)
}

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service orchestrates checkout: a state machine persisted per identity, with
// the irreversible work confined to the Submitting step.
type Service struct {
	sessions SessionStore
	carts    CartAccess
	products ProductSource
	coupons  CouponGate
	ledger   ledger.Store
	orders   OrderStore
	numbers  NumberSource
	producer Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	sessions SessionStore,
	carts CartAccess,
	products ProductSource,
	coupons CouponGate,
	ledgerStore ledger.Store,
	orders OrderStore,
	numbers NumberSource,
	producer Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		carts:    carts,
		products: products,
		coupons:  coupons,
		ledger:   ledgerStore,
		orders:   orders,
		numbers:  numbers,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Current returns the session for the identity, defaulting to an idle one.
func (s *Service) Current(ctx context.Context, customerID string) (*Session, error) {
	session, err := s.sessions.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &Session{State: StateIdle}
	}
	return session, nil
}

// Begin opens a checkout session. The cart must have something in it.
func (s *Service) Begin(ctx context.Context, customerID string) (*Session, error) {
	lines, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	session, err := s.Current(ctx, customerID)
	if err != nil {
		return nil, err
	}

	next, err := Transition(session.State, EventStarted)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadState, err)
	}

	fresh := Session{State: next}
	if err := s.sessions.Save(ctx, customerID, fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// SubmitShipping records validated shipping details and, when a coupon code
// is present, re-validates it. A rejected coupon clears the code and the
// checkout carries on undiscounted; the rejection reason is returned for
// display.
func (s *Service) SubmitShipping(ctx context.Context, customerID string, info domain.ShippingInfo, couponCode string) (*Session, string, error) {
	session, err := s.Current(ctx, customerID)
	if err != nil {
		return nil, "", err
	}

	if err := info.Validate(); err != nil {
		if _, terr := Transition(session.State, EventShippingRejected); terr != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrBadState, terr)
		}
		return nil, "", err
	}

	next, err := Transition(session.State, EventShippingSubmitted)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrBadState, err)
	}

	couponNotice := ""
	code := coupon.Canonical(couponCode)
	if code != "" {
		if _, verr := s.coupons.Validate(ctx, code, customerID); verr != nil {
			msg, rejected := coupon.RejectionMessage(verr)
			if !rejected {
				return nil, "", verr
			}
			if ferr := s.coupons.Forget(ctx, customerID, code); ferr != nil {
				s.logger.Warn("failed to drop rejected coupon snapshot", "error", ferr, "customer_id", customerID)
			}
			couponNotice = msg
			code = ""
			if next, err = Transition(next, EventCouponRejected); err != nil {
				return nil, "", fmt.Errorf("%w: %s", ErrBadState, err)
			}
		}
	}

	updated := Session{State: next, Shipping: info, CouponCode: code}
	if err := s.sessions.Save(ctx, customerID, updated); err != nil {
		return nil, "", err
	}
	return &updated, couponNotice, nil
}

// Confirm runs the guards, then the submission sequence. After the coupon is
// reserved there is no retry path: any later failure fails the checkout and
// the reserved use stays consumed.
func (s *Service) Confirm(ctx context.Context, customerID string, method domain.PaymentMethod) (*domain.Order, error) {
	session, err := s.Current(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session.State != StateAwaitingPaymentMethod {
		return nil, ErrBadState
	}

	lines, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	last, err := s.sessions.LastCheckout(ctx, customerID)
	if err != nil {
		s.logger.Warn("failed to read checkout cooldown", "error", err, "customer_id", customerID)
	} else if !last.IsZero() && s.now().Sub(last) < checkoutCooldown {
		return nil, ErrCooldown
	}

	products, err := s.products.GetProducts(ctx, productIDs(lines))
	if err != nil {
		return nil, err
	}
	deposit := cart.RequiredDeposit(lines, products)

	switch method {
	case domain.PaymentMethodCash:
		if deposit > 0 {
			return nil, ErrCashDisabled
		}
	case domain.PaymentMethodWallet:
	case domain.PaymentMethodInstapay:
		return nil, ErrMethodUnavailable
	default:
		return nil, ErrInvalidMethod
	}

	next, err := Transition(session.State, EventPaymentChosen)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadState, err)
	}
	session.State = next
	session.PaymentMethod = method
	if err := s.sessions.Save(ctx, customerID, *session); err != nil {
		return nil, err
	}

	order, err := s.submit(ctx, customerID, session, lines, products, deposit)
	if err != nil {
		s.fail(ctx, customerID, session, err)
		return nil, err
	}

	next, err = Transition(session.State, EventSubmissionSucceeded)
	if err != nil {
		s.logger.Warn("illegal transition after submission", "error", err, "customer_id", customerID)
	}
	session.State = next
	session.OrderID = order.ID
	if serr := s.sessions.Save(ctx, customerID, *session); serr != nil {
		s.logger.Warn("failed to save completed session", "error", serr, "customer_id", customerID)
	}

	return order, nil
}

// Abandon drops the session without side effects on cart or coupons.
func (s *Service) Abandon(ctx context.Context, customerID string) error {
	session, err := s.Current(ctx, customerID)
	if err != nil {
		return err
	}
	if _, err := Transition(session.State, EventAbandoned); err != nil {
		return fmt.Errorf("%w: %s", ErrBadState, err)
	}
	return s.sessions.Delete(ctx, customerID)
}

func (s *Service) submit(ctx context.Context, customerID string, session *Session, lines []domain.CartLine, products map[string]domain.Product, deposit int64) (*domain.Order, error) {
	var appliedCoupon *domain.Coupon
	if session.CouponCode != "" {
		c, err := s.coupons.Validate(ctx, session.CouponCode, customerID)
		if err != nil {
			return nil, fmt.Errorf("coupon no longer valid: %w", err)
		}
		appliedCoupon = c
	}

	orderNumber, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, err
	}

	if appliedCoupon != nil {
		if err := s.coupons.Reserve(ctx, customerID, appliedCoupon); err != nil {
			return nil, fmt.Errorf("reserve coupon: %w", err)
		}
	}

	subtotal, total := cart.Totals(lines, appliedCoupon)

	status := domain.OrderStatusReview
	if session.PaymentMethod != domain.PaymentMethodCash {
		status = domain.OrderStatusWaitingPayment
	}

	order := &domain.Order{
		OrderNumber:     orderNumber,
		CustomerID:      customerID,
		Items:           orderItems(lines, products),
		Subtotal:        subtotal,
		Total:           total,
		RequiredDeposit: deposit,
		PaymentMethod:   session.PaymentMethod,
		Status:          status,
		Shipping:        session.Shipping,
		CreatedAt:       s.now().UTC(),
	}
	if appliedCoupon != nil {
		order.CouponCode = appliedCoupon.Code
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// The order exists from here on. Everything below is best effort and must
	// not fail the checkout.
	if appliedCoupon != nil {
		if err := s.ledger.MarkUsed(ctx, customerID, appliedCoupon.Code); err != nil {
			s.logger.Warn("failed to mark coupon used", "error", err, "customer_id", customerID, "code", appliedCoupon.Code)
		}
		if err := s.coupons.Forget(ctx, customerID, appliedCoupon.Code); err != nil {
			s.logger.Warn("failed to drop consumed coupon snapshot", "error", err, "customer_id", customerID)
		}
	}

	if err := s.carts.Clear(ctx, customerID); err != nil {
		s.logger.Warn("failed to clear cart after checkout", "error", err, "customer_id", customerID)
	}

	if err := s.sessions.StampCheckout(ctx, customerID, s.now()); err != nil {
		s.logger.Warn("failed to stamp checkout cooldown", "error", err, "customer_id", customerID)
	}

	event := domain.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Total:         order.Total,
		Deposit:       order.RequiredDeposit,
		PaymentMethod: order.PaymentMethod,
		CouponCode:    order.CouponCode,
		Timestamp:     order.CreatedAt,
	}
	if err := s.producer.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}

	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"customer_id", customerID,
		"total", order.Total,
		"payment_method", order.PaymentMethod,
	)

	return order, nil
}

func (s *Service) fail(ctx context.Context, customerID string, session *Session, cause error) {
	next, err := Transition(session.State, EventSubmissionFailed)
	if err != nil {
		next = StateFailed
	}
	session.State = next
	session.FailureReason = cause.Error()
	if err := s.sessions.Save(ctx, customerID, *session); err != nil {
		s.logger.Warn("failed to save failed session", "error", err, "customer_id", customerID)
	}
	s.logger.Error("checkout failed", "error", cause, "customer_id", customerID)
}

func productIDs(lines []domain.CartLine) []string {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

// orderItems freezes full pricing detail into the order: the catalog list
// price and discount at order time, next to the unit price actually charged.
func orderItems(lines []domain.CartLine, products map[string]domain.Product) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := domain.OrderItem{
			ProductID:   line.ProductID,
			Name:        line.Name,
			VariantName: line.VariantName,
			ImageURL:    line.ImageURL,
			Quantity:    line.Quantity,
			ActualPrice: line.UnitPrice,
		}
		if p, ok := products[line.ProductID]; ok {
			item.ListPrice, item.Discount = pricing.ListPrice(p, line.VariantName)
		} else {
			item.ListPrice = line.UnitPrice
		}
		items = append(items, item)
	}
	return items
}
