package ledger

import (
	"errors"
	"fmt"
)

var ErrVariantNotFound = errors.New("variant not found")

// InsufficientStockError is returned when a negative delta would drive the
// variant balance below zero.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// DivergenceError means the cached balance disagrees with the movement sum.
// It is an operational alarm, not a user-facing failure.
type DivergenceError struct {
	VariantID string
	Cached    int
	Actual    int
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("ledger divergence for variant %s: cached %d, sum of movements %d",
		e.VariantID, e.Cached, e.Actual)
}
