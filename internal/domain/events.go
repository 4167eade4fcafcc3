package domain

import "time"

type OrderCreatedEvent struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   int64         `json:"order_number"`
	CustomerID    string        `json:"customer_id"`
	Total         int64         `json:"total"`
	Deposit       int64         `json:"deposit"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
