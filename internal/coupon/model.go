package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeFlat       Type = "flat"
	TypePercentage Type = "percentage"
)

func (t Type) Valid() bool {
	return t == TypeFlat || t == TypePercentage
}

type Coupon struct {
	ID             string           `json:"id"`
	Code           string           `json:"code"`
	Type           Type             `json:"type"`
	Value          decimal.Decimal  `json:"value"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty"`
	ValidTo        *time.Time       `json:"valid_to,omitempty"`
	UsageLimit     *int             `json:"usage_limit,omitempty"` // nil = unlimited
	UsageCount     int              `json:"usage_count"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// OrderCoupon records the discount actually applied to an order, immutable
// once written.
type OrderCoupon struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	CouponID        string          `json:"coupon_id"`
	Code            string          `json:"code"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	CreatedAt       time.Time       `json:"created_at"`
}
