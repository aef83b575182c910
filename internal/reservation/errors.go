package reservation

import "fmt"

// OutOfStockError is returned when the available quantity of a variant
// (balance minus active holds) cannot cover a new reservation.
type OutOfStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

type NotFoundError struct {
	ReservationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reservation %s not found", e.ReservationID)
}

// ExpiredError is returned when converting a reservation that the sweep has
// already expired (or whose TTL elapsed before conversion).
type ExpiredError struct {
	ReservationID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("reservation %s is expired", e.ReservationID)
}
