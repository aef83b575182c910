package ledger

import "context"

type ListFilter struct {
	VariantID string // empty = all variants
	Page      int
	PageSize  int
}

// Store persists movements and the cached balance. AppendMovement is a single
// atomic read-modify-write: appends to the same variant are serialized so two
// concurrent negative deltas cannot both observe a pre-decrement balance.
//
// Method names are domain-qualified so one composite store (memstore, pgstore)
// can implement every subsystem's interface.
type Store interface {
	// UpsertVariant registers a variant, or updates its threshold, with a
	// zero opening balance. Appends no movement.
	UpsertVariant(ctx context.Context, variantID string, lowStockThreshold int) error

	// AppendMovement inserts the movement and adjusts the cached balance,
	// returning the new balance. Fails with *InsufficientStockError when
	// delta < 0 would make the balance negative, unless allowNegative is set.
	AppendMovement(ctx context.Context, m Movement, allowNegative bool) (int, error)

	VariantBalance(ctx context.Context, variantID string) (Balance, error)

	// SumMovements resums all movements for the variant.
	SumMovements(ctx context.Context, variantID string) (int, error)

	// VariantIDs returns every registered variant, for reconciliation runs.
	VariantIDs(ctx context.Context) ([]string, error)

	ListMovements(ctx context.Context, f ListFilter) ([]Movement, int, error)
}
