package pricing

import "github.com/omarselim/souq-storefront/internal/domain"

// Resolved is the outcome of resolving a cart selection against the catalog:
// the unit price the customer actually pays, the display name shown on the
// line, and the variant it refers to.
type Resolved struct {
	UnitPrice   int64
	DisplayName string
	VariantName string
}

// Resolve derives the unit price and display name for a product and an
// optional variant index. Variants supersede the base price and discount;
// an absent or out-of-range index falls back to the first variant. A
// positive discount replaces the price outright.
//
// Resolve is a pure function. Callers freeze its result into the cart line
// so later catalog changes never reprice items already in the cart.
func Resolve(p domain.Product, variantIndex int) Resolved {
	if len(p.Variants) > 0 {
		if variantIndex < 0 || variantIndex >= len(p.Variants) {
			variantIndex = 0
		}
		v := p.Variants[variantIndex]
		return Resolved{
			UnitPrice:   effective(v.Price, v.Discount),
			DisplayName: p.Name + " - " + v.Name,
			VariantName: v.Name,
		}
	}
	return Resolved{
		UnitPrice:   effective(p.Price, p.Discount),
		DisplayName: p.Name,
	}
}

// ListPrice returns the pre-discount catalog price and the discount for the
// given variant name, used to freeze full pricing detail into order items.
// An unknown variant name falls back to the product's base pricing.
func ListPrice(p domain.Product, variantName string) (price, discount int64) {
	if variantName != "" {
		for _, v := range p.Variants {
			if v.Name == variantName {
				return v.Price, v.Discount
			}
		}
	}
	return p.Price, p.Discount
}

func effective(price, discount int64) int64 {
	if discount > 0 {
		return discount
	}
	return price
}
