package order

import "context"

// Store persists orders, their items, the status trail and audit notes.
// CreateOrder and UpdateOrderStatus are single atomic units: the history row
// is written in the same transaction as the status change, and a restocking
// cancellation appends its compensating ledger movements there too.
type Store interface {
	// CreateOrder inserts the order, its items and the initial history row
	// (nil -> pending) atomically.
	CreateOrder(ctx context.Context, o Order, items []OrderItem, hist StatusHistory) error

	// DeleteOrder removes the order with its items and history. Checkout saga
	// compensation only; committed orders are never deleted.
	DeleteOrder(ctx context.Context, id string) error

	GetOrder(ctx context.Context, id string) (Order, []OrderItem, error)
	OrderByCheckoutRef(ctx context.Context, ref string) (Order, error)

	// UpdateOrderStatus compare-and-sets status from -> to and appends the
	// history row atomically. Returns ErrConflict when the stored status is
	// no longer from. When restock is set, a compensating cancel movement is
	// appended for every converted reservation of the order, in the same
	// transaction.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to Status, hist StatusHistory, restock bool) error

	AddOrderNote(ctx context.Context, n Note) error
	ListOrderNotes(ctx context.Context, orderID string) ([]Note, error)
	ListStatusHistory(ctx context.Context, orderID string, page, pageSize int) ([]StatusHistory, int, error)
}
