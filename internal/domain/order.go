package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusReview         OrderStatus = "review"
	OrderStatusWaitingPayment OrderStatus = "waiting_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodWallet   PaymentMethod = "wallet"
	PaymentMethodInstapay PaymentMethod = "instapay"
)

// OrderItem carries the full pricing detail frozen at order time: the catalog
// list price, the promotional discount that applied, and the price actually
// charged per unit.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Quantity    int    `json:"quantity"`
	ListPrice   int64  `json:"list_price"`
	Discount    int64  `json:"discount"`
	ActualPrice int64  `json:"actual_price"`
}

// ShippingInfo is copied into the order at creation time, not referenced live.
type ShippingInfo struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	SecondPhone string `json:"second_phone,omitempty"`
	Address     string `json:"address"`
	Landmark    string `json:"landmark,omitempty"`
}

// Egyptian mobile numbers: optional +2 country code, then 010/011/012/015
// followed by eight digits.
var phonePattern = regexp.MustCompile(`^(\+2)?01[0125][0-9]{8}$`)

var (
	ErrShippingIncomplete = errors.New("shipping info incomplete")
	ErrInvalidPhone       = errors.New("invalid phone number")
)

// Validate checks the mandatory shipping fields. Full name, phone, and
// address are required; the second phone is validated only when present.
func (s ShippingInfo) Validate() error {
	if !s.Complete() {
		return ErrShippingIncomplete
	}
	if !phonePattern.MatchString(s.PhoneNumber) {
		return ErrInvalidPhone
	}
	if s.SecondPhone != "" && !phonePattern.MatchString(s.SecondPhone) {
		return ErrInvalidPhone
	}
	return nil
}

// Complete reports whether the mandatory fields are filled, without checking
// the phone format. Used to decide whether to prompt for shipping data.
func (s ShippingInfo) Complete() bool {
	return strings.TrimSpace(s.FullName) != "" &&
		strings.TrimSpace(s.PhoneNumber) != "" &&
		strings.TrimSpace(s.Address) != ""
}

type Order struct {
	ID              string        `json:"id"`
	OrderNumber     int64         `json:"order_number"`
	CustomerID      string        `json:"customer_id"`
	Items           []OrderItem   `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	Total           int64         `json:"total"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	RequiredDeposit int64         `json:"required_deposit"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Status          OrderStatus   `json:"status"`
	Shipping        ShippingInfo  `json:"shipping"`
	PaymentProofURL string        `json:"payment_proof_url,omitempty"`
	ProofUploadedAt *time.Time    `json:"proof_uploaded_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
