package domain

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// CouponScope decides who a single-use coupon is single-use for.
type CouponScope string

const (
	CouponGlobal  CouponScope = "GLOBAL"   // one redemption in total
	CouponPerUser CouponScope = "PER_USER" // one redemption per user
)

type Coupon struct {
	Code      string
	Type      DiscountType
	Value     int64 // percent (0..100) or minor units
	ExpiresAt time.Time
	Scope     CouponScope
	UsedAt    *time.Time // GLOBAL scope only
}

// Expired reports whether the coupon can no longer be applied at now.
func (c Coupon) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Discount returns the amount taken off subtotal, never more than subtotal.
func (c Coupon) Discount(subtotal int64) int64 {
	var d int64
	switch c.Type {
	case DiscountPercentage:
		pct := min(max(c.Value, 0), 100)
		d = subtotal * pct / 100
	case DiscountFixed:
		d = max(c.Value, 0)
	}
	return min(d, max(subtotal, 0))
}

// Apply returns max(0, subtotal - discount).
func (c Coupon) Apply(subtotal int64) int64 {
	return max(subtotal-c.Discount(subtotal), 0)
}
