package coupon

import "context"

// Store persists coupons. ApplyCoupon is the concurrency-critical operation:
// a compare-and-increment that only succeeds while usageCount < usageLimit at
// commit time.
type Store interface {
	CreateCoupon(ctx context.Context, c Coupon) error
	CouponByCode(ctx context.Context, code string) (Coupon, error)
	CouponByID(ctx context.Context, id string) (Coupon, error)

	// ApplyCoupon atomically increments usageCount; two concurrent
	// redemptions of the last slot yield exactly one success and one
	// *UsageExceededError.
	ApplyCoupon(ctx context.Context, id string) error

	// ReleaseCouponUsage decrements usageCount (floor zero); checkout saga
	// compensation for ApplyCoupon.
	ReleaseCouponUsage(ctx context.Context, id string) error

	// RecordOrderCoupon writes the immutable per-order discount record.
	RecordOrderCoupon(ctx context.Context, oc OrderCoupon) error

	SetCouponActive(ctx context.Context, id string, active bool) error
	ListCoupons(ctx context.Context, page, pageSize int) ([]Coupon, int, error)
}
