package cart

import "github.com/omarselim/souq-storefront/internal/domain"

// Totals folds cart lines into the pre-coupon subtotal and the payable total.
// Unit prices already reflect product/variant discounts, frozen at add time.
// A nil coupon leaves the total equal to the subtotal; a flat coupon can never
// push the total below zero. Pure function: identical inputs, identical
// outputs, no hidden state.
func Totals(lines []domain.CartLine, c *domain.Coupon) (subtotal, total int64) {
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}

	total = subtotal
	if c == nil {
		return subtotal, total
	}

	switch c.Type {
	case domain.CouponTypePercentage:
		total = subtotal * (100 - c.Value) / 100
	case domain.CouponTypeFlat:
		total = subtotal - c.Value
	}

	if total < 0 {
		total = 0
	}
	return subtotal, total
}

// RequiredDeposit sums the deposits carried by cart lines, looking up each
// line's product. Products with a nonzero deposit force a non-cash payment
// method at checkout.
func RequiredDeposit(lines []domain.CartLine, products map[string]domain.Product) int64 {
	var deposit int64
	for _, line := range lines {
		if p, ok := products[line.ProductID]; ok && p.Deposit > 0 {
			deposit += p.Deposit * int64(line.Quantity)
		}
	}
	return deposit
}
