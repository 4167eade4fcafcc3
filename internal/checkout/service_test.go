package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/omarselim/souq-storefront/internal/coupon"
	"github.com/omarselim/souq-storefront/internal/domain"
)

type fakeSessions struct {
	sessions  map[string]*Session
	cooldowns map[string]time.Time
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions:  make(map[string]*Session),
		cooldowns: make(map[string]time.Time),
	}
}

func (f *fakeSessions) Load(_ context.Context, customerID string) (*Session, error) {
	s, ok := f.sessions[customerID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) Save(_ context.Context, customerID string, s Session) error {
	f.sessions[customerID] = &s
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, customerID string) error {
	delete(f.sessions, customerID)
	return nil
}

func (f *fakeSessions) LastCheckout(_ context.Context, customerID string) (time.Time, error) {
	return f.cooldowns[customerID], nil
}

func (f *fakeSessions) StampCheckout(_ context.Context, customerID string, at time.Time) error {
	f.cooldowns[customerID] = at
	return nil
}

type fakeCarts struct {
	carts   map[string][]domain.CartLine
	cleared map[string]bool
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string][]domain.CartLine), cleared: make(map[string]bool)}
}

func (f *fakeCarts) Get(_ context.Context, customerID string) ([]domain.CartLine, error) {
	return f.carts[customerID], nil
}

func (f *fakeCarts) Clear(_ context.Context, customerID string) error {
	delete(f.carts, customerID)
	f.cleared[customerID] = true
	return nil
}

type fakeProducts struct {
	products map[string]domain.Product
}

func (f *fakeProducts) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeCoupons struct {
	coupons     map[string]*domain.Coupon
	validateErr error
	reserveErr  error
	reserved    []string
	forgotten   []string
}

func newFakeCoupons() *fakeCoupons {
	return &fakeCoupons{coupons: make(map[string]*domain.Coupon)}
}

func (f *fakeCoupons) Validate(_ context.Context, code, _ string) (*domain.Coupon, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	c, ok := f.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (f *fakeCoupons) Reserve(_ context.Context, _ string, c *domain.Coupon) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved = append(f.reserved, c.Code)
	return nil
}

func (f *fakeCoupons) Forget(_ context.Context, _, code string) error {
	f.forgotten = append(f.forgotten, code)
	return nil
}

type fakeLedger struct {
	used map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{used: make(map[string]bool)}
}

func (f *fakeLedger) MarkUsed(_ context.Context, customerID, code string) error {
	f.used[customerID+"/"+code] = true
	return nil
}

func (f *fakeLedger) IsUsed(_ context.Context, customerID, code string) (bool, error) {
	return f.used[customerID+"/"+code], nil
}

func (f *fakeLedger) Prune(_ context.Context, _ string, _ []string) error {
	return nil
}

type fakeOrders struct {
	created   []*domain.Order
	createErr error
}

func (f *fakeOrders) Create(_ context.Context, order *domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.ID = "order-" + order.Shipping.FullName
	f.created = append(f.created, order)
	return nil
}

type fakeNumbers struct {
	next int64
	err  error
}

func (f *fakeNumbers) Next(_ context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return 10000 + f.next, nil
}

type fakePublisher struct {
	events []any
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fixture struct {
	svc      *Service
	sessions *fakeSessions
	carts    *fakeCarts
	products *fakeProducts
	coupons  *fakeCoupons
	ledger   *fakeLedger
	orders   *fakeOrders
	numbers  *fakeNumbers
	events   *fakePublisher
	clock    *time.Time
}

func newFixture() *fixture {
	f := &fixture{
		sessions: newFakeSessions(),
		carts:    newFakeCarts(),
		products: &fakeProducts{products: make(map[string]domain.Product)},
		coupons:  newFakeCoupons(),
		ledger:   newFakeLedger(),
		orders:   &fakeOrders{},
		numbers:  &fakeNumbers{},
		events:   &fakePublisher{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.sessions, f.carts, f.products, f.coupons, f.ledger, f.orders, f.numbers, f.events, logger)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.clock = &now
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

var validShipping = domain.ShippingInfo{
	FullName:    "Omar Selim",
	PhoneNumber: "01012345678",
	Address:     "12 Tahrir St, Cairo",
}

func (f *fixture) seedCart(customerID string) {
	f.products.products["p-1"] = domain.Product{ID: "p-1", Name: "Teapot", Price: 100}
	f.carts.carts[customerID] = []domain.CartLine{
		{ProductID: "p-1", Name: "Teapot", UnitPrice: 100, Quantity: 2},
	}
}

func (f *fixture) reachPaymentStep(t *testing.T, customerID, couponCode string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Begin(ctx, customerID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, _, err := f.svc.SubmitShipping(ctx, customerID, validShipping, couponCode); err != nil {
		t.Fatalf("submit shipping failed: %v", err)
	}
}

func TestBegin(t *testing.T) {
	ctx := context.Background()

	t.Run("requires non-empty cart", func(t *testing.T) {
		f := newFixture()
		if _, err := f.svc.Begin(ctx, "user-1"); !errors.Is(err, ErrEmptyCart) {
			t.Errorf("expected ErrEmptyCart, got %v", err)
		}
	})

	t.Run("opens session awaiting shipping", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")

		session, err := f.svc.Begin(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.State != StateAwaitingShippingInfo {
			t.Errorf("expected awaiting_shipping_info, got %s", session.State)
		}
	})
}

func TestSubmitShipping(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid phone is rejected and state holds", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		if _, err := f.svc.Begin(ctx, "user-1"); err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		bad := validShipping
		bad.PhoneNumber = "0512345678"
		_, _, err := f.svc.SubmitShipping(ctx, "user-1", bad, "")
		if !errors.Is(err, domain.ErrInvalidPhone) {
			t.Fatalf("expected ErrInvalidPhone, got %v", err)
		}

		session, _ := f.svc.Current(ctx, "user-1")
		if session.State != StateAwaitingShippingInfo {
			t.Errorf("expected state to hold at shipping, got %s", session.State)
		}
	})

	t.Run("rejected coupon clears code and continues", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		if _, err := f.svc.Begin(ctx, "user-1"); err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		session, notice, err := f.svc.SubmitShipping(ctx, "user-1", validShipping, "GHOST")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.State != StateAwaitingPaymentMethod {
			t.Errorf("expected awaiting_payment_method, got %s", session.State)
		}
		if session.CouponCode != "" {
			t.Errorf("expected coupon code cleared, got %q", session.CouponCode)
		}
		if notice == "" {
			t.Errorf("expected a rejection notice")
		}
	})

	t.Run("valid coupon is carried", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.coupons.coupons["SAVE10"] = &domain.Coupon{ID: "c-1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true}
		if _, err := f.svc.Begin(ctx, "user-1"); err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		session, notice, err := f.svc.SubmitShipping(ctx, "user-1", validShipping, "save10")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.CouponCode != "SAVE10" {
			t.Errorf("expected canonical code SAVE10, got %q", session.CouponCode)
		}
		if notice != "" {
			t.Errorf("expected no notice, got %q", notice)
		}
	})
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("cash order lands in review", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.reachPaymentStep(t, "user-1", "")

		order, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Status != domain.OrderStatusReview {
			t.Errorf("expected review status, got %s", order.Status)
		}
		if order.OrderNumber != 10001 {
			t.Errorf("expected order number 10001, got %d", order.OrderNumber)
		}
		if order.Subtotal != 200 || order.Total != 200 {
			t.Errorf("unexpected totals: subtotal=%d total=%d", order.Subtotal, order.Total)
		}
		if !f.carts.cleared["user-1"] {
			t.Errorf("expected cart cleared after checkout")
		}
		if len(f.events.events) != 1 {
			t.Errorf("expected one published event, got %d", len(f.events.events))
		}

		session, _ := f.svc.Current(ctx, "user-1")
		if session.State != StateCompleted {
			t.Errorf("expected completed state, got %s", session.State)
		}
		if session.OrderID != order.ID {
			t.Errorf("expected session to carry the order id")
		}
	})

	t.Run("wallet order waits for payment", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.reachPaymentStep(t, "user-1", "")

		order, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodWallet)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Status != domain.OrderStatusWaitingPayment {
			t.Errorf("expected waiting_payment, got %s", order.Status)
		}
	})

	t.Run("instapay is unavailable", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.reachPaymentStep(t, "user-1", "")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodInstapay); !errors.Is(err, ErrMethodUnavailable) {
			t.Errorf("expected ErrMethodUnavailable, got %v", err)
		}
	})

	t.Run("deposit disables cash", func(t *testing.T) {
		f := newFixture()
		f.products.products["p-2"] = domain.Product{ID: "p-2", Name: "Engraved ring", Price: 500, Deposit: 100}
		f.carts.carts["user-1"] = []domain.CartLine{
			{ProductID: "p-2", Name: "Engraved ring", UnitPrice: 500, Quantity: 1},
		}
		f.reachPaymentStep(t, "user-1", "")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); !errors.Is(err, ErrCashDisabled) {
			t.Fatalf("expected ErrCashDisabled, got %v", err)
		}

		order, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodWallet)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.RequiredDeposit != 100 {
			t.Errorf("expected deposit 100, got %d", order.RequiredDeposit)
		}
	})

	t.Run("cooldown blocks back-to-back orders", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.reachPaymentStep(t, "user-1", "")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); err != nil {
			t.Fatalf("first checkout failed: %v", err)
		}

		f.seedCart("user-1")
		*f.clock = f.clock.Add(30 * time.Second)
		f.reachPaymentStep(t, "user-1", "")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); !errors.Is(err, ErrCooldown) {
			t.Fatalf("expected ErrCooldown, got %v", err)
		}

		*f.clock = f.clock.Add(31 * time.Second)
		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); err != nil {
			t.Errorf("expected checkout after cooldown, got %v", err)
		}
	})

	t.Run("coupon reserved and ledger marked after persistence", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.coupons.coupons["SAVE10"] = &domain.Coupon{ID: "c-1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true}
		f.reachPaymentStep(t, "user-1", "SAVE10")

		order, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Total != 180 {
			t.Errorf("expected discounted total 180, got %d", order.Total)
		}
		if order.CouponCode != "SAVE10" {
			t.Errorf("expected coupon code on order, got %q", order.CouponCode)
		}
		if len(f.coupons.reserved) != 1 {
			t.Errorf("expected one reservation, got %d", len(f.coupons.reserved))
		}
		if !f.ledger.used["user-1/SAVE10"] {
			t.Errorf("expected ledger marked after successful order")
		}
	})

	t.Run("reservation conflict aborts without an order", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.coupons.coupons["LAST1"] = &domain.Coupon{ID: "c-2", Code: "LAST1", Type: domain.CouponTypeFlat, Value: 20, Active: true}
		f.reachPaymentStep(t, "user-1", "LAST1")
		f.coupons.reserveErr = coupon.ErrExhausted

		_, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash)
		if !errors.Is(err, coupon.ErrExhausted) {
			t.Fatalf("expected ErrExhausted, got %v", err)
		}

		if len(f.orders.created) != 0 {
			t.Errorf("no order may exist after a failed reservation")
		}
		if f.ledger.used["user-1/LAST1"] {
			t.Errorf("ledger must not be marked on failure")
		}
		if f.carts.cleared["user-1"] {
			t.Errorf("cart must survive a failed checkout")
		}

		session, _ := f.svc.Current(ctx, "user-1")
		if session.State != StateFailed {
			t.Errorf("expected failed state, got %s", session.State)
		}
	})

	t.Run("order number failure fails the checkout", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.reachPaymentStep(t, "user-1", "")
		f.numbers.err = errors.New("counter row missing")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); err == nil {
			t.Fatalf("expected error when number allocation fails")
		}
		if len(f.orders.created) != 0 {
			t.Errorf("no order may exist without a real order number")
		}
	})

	t.Run("persistence failure does not touch ledger or cart", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")
		f.coupons.coupons["SAVE10"] = &domain.Coupon{ID: "c-1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true}
		f.reachPaymentStep(t, "user-1", "SAVE10")
		f.orders.createErr = errors.New("connection refused")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); err == nil {
			t.Fatalf("expected error when persistence fails")
		}
		if f.ledger.used["user-1/SAVE10"] {
			t.Errorf("ledger must not be marked when the order was not persisted")
		}
		if f.carts.cleared["user-1"] {
			t.Errorf("cart must survive a failed checkout")
		}
	})

	t.Run("confirm requires payment step", func(t *testing.T) {
		f := newFixture()
		f.seedCart("user-1")

		if _, err := f.svc.Confirm(ctx, "user-1", domain.PaymentMethodCash); !errors.Is(err, ErrBadState) {
			t.Errorf("expected ErrBadState, got %v", err)
		}
	})
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	f.seedCart("user-1")
	f.reachPaymentStep(t, "user-1", "")

	if err := f.svc.Abandon(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, _ := f.svc.Current(ctx, "user-1")
	if session.State != StateIdle {
		t.Errorf("expected idle after abandon, got %s", session.State)
	}
	if len(f.carts.carts["user-1"]) == 0 {
		t.Errorf("abandon must not clear the cart")
	}
}
