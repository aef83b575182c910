package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrConflict means the caller's assumed fromStatus no longer matches the
	// stored one. Retryable: the owning operation re-reads and retries a
	// bounded number of times before surfacing it.
	ErrConflict = errors.New("order status changed concurrently")
)

type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}
