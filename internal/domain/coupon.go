package domain

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFlat       CouponType = "flat"
)

// Coupon mirrors the authoritative coupon record. UsageCount is only ever
// incremented through the atomic reservation path; a UsageLimit of 0 means
// unlimited.
type Coupon struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Type       CouponType `json:"type"`
	Value      int64      `json:"value"`
	Active     bool       `json:"active"`
	UsageCount int        `json:"usage_count"`
	UsageLimit int        `json:"usage_limit"`
}
