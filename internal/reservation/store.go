package reservation

import (
	"context"
	"time"
)

type ListFilter struct {
	VariantID string // empty = all variants
	Page      int
	PageSize  int
}

// Store persists reservations. The availability check in CreateReservation and
// the status/ledger pair in ConvertReservation and UnconvertReservation are
// single atomic units scoped to the variant row, so concurrent carts cannot
// both take the last unit.
type Store interface {
	// CreateReservation inserts the reservation only if
	// balance - active holds >= quantity. Fails with *OutOfStockError.
	CreateReservation(ctx context.Context, r Reservation) error

	GetReservation(ctx context.Context, id string) (Reservation, error)

	// ConvertReservation transitions active -> converted and debits the
	// ledger (reason "order", ref order_item) as one atomic unit. The status
	// check is optimistic: a row no longer active fails with *ExpiredError or
	// *NotFoundError rather than double-booking stock.
	ConvertReservation(ctx context.Context, id, orderID string) error

	// UnconvertReservation is the checkout saga compensation for a convert:
	// it restores the hold to active and appends a compensating cancel
	// movement.
	UnconvertReservation(ctx context.Context, id string) error

	// ReleaseReservation transitions active|expired -> released. No ledger
	// effect.
	ReleaseReservation(ctx context.Context, id string, at time.Time) error

	// ExpireDueReservations marks active reservations past their expiry as
	// expired and returns how many rows changed. Already-expired rows are
	// untouched.
	ExpireDueReservations(ctx context.Context, now time.Time) (int, error)

	// AvailableStock returns balance minus active holds for the variant.
	AvailableStock(ctx context.Context, variantID string) (int, error)

	ListReservations(ctx context.Context, f ListFilter) ([]Reservation, int, error)
}
