package coupon

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("coupon not found")

// InactiveError covers unknown codes as well as deactivated ones, so callers
// cannot probe which codes exist.
type InactiveError struct {
	Code string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("coupon %s is not active", e.Code)
}

// ExpiredError means now is outside the coupon's validity window.
type ExpiredError struct {
	Code string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("coupon %s is outside its validity window", e.Code)
}

type MinNotMetError struct {
	Code     string
	Min      decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinNotMetError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum order of %s, subtotal is %s",
		e.Code, e.Min, e.Subtotal)
}

type UsageExceededError struct {
	Code string
}

func (e *UsageExceededError) Error() string {
	return fmt.Sprintf("coupon %s has reached its usage limit", e.Code)
}
