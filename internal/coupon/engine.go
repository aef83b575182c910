package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Engine validates and atomically consumes discount codes. It is independent
// of stock; checkout consumes it as one saga step.
type Engine struct {
	store Store
	log   *zap.Logger
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

type CreateInput struct {
	Code           string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxDiscount    *decimal.Decimal
	ValidFrom      *time.Time
	ValidTo        *time.Time
	UsageLimit     *int
}

func (e *Engine) Create(ctx context.Context, in CreateInput) (Coupon, error) {
	if !in.Type.Valid() {
		return Coupon{}, fmt.Errorf("unknown coupon type %q", in.Type)
	}
	if in.Value.IsNegative() {
		return Coupon{}, fmt.Errorf("coupon value must not be negative")
	}
	if in.Type == TypePercentage && in.Value.GreaterThan(hundred) {
		return Coupon{}, fmt.Errorf("percentage discount cannot exceed 100")
	}
	now := time.Now().UTC()
	c := Coupon{
		ID:             uuid.NewString(),
		Code:           strings.ToUpper(strings.TrimSpace(in.Code)),
		Type:           in.Type,
		Value:          in.Value,
		MinOrderAmount: in.MinOrderAmount,
		MaxDiscount:    in.MaxDiscount,
		ValidFrom:      in.ValidFrom,
		ValidTo:        in.ValidTo,
		UsageLimit:     in.UsageLimit,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateCoupon(ctx, c); err != nil {
		return Coupon{}, err
	}
	e.log.Info("coupon created", zap.String("code", c.Code), zap.String("type", string(c.Type)))
	return c, nil
}

// Validate checks the code against the subtotal at the given instant and
// returns the coupon plus the discount it would grant. It does not consume a
// usage slot; Apply does.
func (e *Engine) Validate(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (Coupon, decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	c, err := e.store.CouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Coupon{}, decimal.Zero, &InactiveError{Code: code}
		}
		return Coupon{}, decimal.Zero, err
	}
	if !c.IsActive {
		return Coupon{}, decimal.Zero, &InactiveError{Code: code}
	}
	if (c.ValidFrom != nil && now.Before(*c.ValidFrom)) ||
		(c.ValidTo != nil && now.After(*c.ValidTo)) {
		return Coupon{}, decimal.Zero, &ExpiredError{Code: code}
	}
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return Coupon{}, decimal.Zero, &MinNotMetError{Code: code, Min: *c.MinOrderAmount, Subtotal: subtotal}
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return Coupon{}, decimal.Zero, &UsageExceededError{Code: code}
	}
	return c, ComputeDiscount(c, subtotal), nil
}

// Apply consumes one usage slot. The store enforces the cap at commit time.
func (e *Engine) Apply(ctx context.Context, couponID string) error {
	return e.store.ApplyCoupon(ctx, couponID)
}

// Release hands a usage slot back during saga compensation.
func (e *Engine) Release(ctx context.Context, couponID string) error {
	return e.store.ReleaseCouponUsage(ctx, couponID)
}

// RecordApplied writes the per-order discount record.
func (e *Engine) RecordApplied(ctx context.Context, orderID string, c Coupon, discount decimal.Decimal) error {
	return e.store.RecordOrderCoupon(ctx, OrderCoupon{
		ID:              uuid.NewString(),
		OrderID:         orderID,
		CouponID:        c.ID,
		Code:            c.Code,
		DiscountApplied: discount,
		CreatedAt:       time.Now().UTC(),
	})
}

func (e *Engine) Deactivate(ctx context.Context, id string) error {
	return e.store.SetCouponActive(ctx, id, false)
}

func (e *Engine) List(ctx context.Context, page, pageSize int) ([]Coupon, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return e.store.ListCoupons(ctx, page, pageSize)
}

// ComputeDiscount never exceeds the subtotal. Percentage discounts are capped
// by MaxDiscount when set.
func ComputeDiscount(c Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case TypePercentage:
		d = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = *c.MaxDiscount
		}
	case TypeFlat:
		d = c.Value
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	return d.Round(2)
}
