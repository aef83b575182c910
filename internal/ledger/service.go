package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the sole source of truth for how many units of a variant exist.
type Ledger struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// RegisterVariant provisions a variant row so movements can be appended
// against it. Idempotent; re-registering updates the low stock threshold.
func (l *Ledger) RegisterVariant(ctx context.Context, variantID string, lowStockThreshold int) error {
	if variantID == "" {
		return fmt.Errorf("variant id is required")
	}
	if lowStockThreshold < 0 {
		return fmt.Errorf("low stock threshold must be >= 0")
	}
	return l.store.UpsertVariant(ctx, variantID, lowStockThreshold)
}

type AppendInput struct {
	VariantID string
	Delta     int
	Reason    Reason
	RefType   *RefType
	RefID     *string
	ActorID   *string

	// AllowNegative permits the balance to go below zero. Only honoured for
	// admin_adjustment (damaged-stock writeoffs and similar corrections).
	AllowNegative bool
}

func (l *Ledger) Append(ctx context.Context, in AppendInput) (int, error) {
	if !in.Reason.Valid() {
		return 0, fmt.Errorf("unknown movement reason %q", in.Reason)
	}
	if in.Delta == 0 {
		return 0, fmt.Errorf("movement delta must be non-zero")
	}
	if in.AllowNegative && in.Reason != ReasonAdminAdjustment {
		return 0, fmt.Errorf("allowNegative is only valid for %s movements", ReasonAdminAdjustment)
	}

	m := Movement{
		ID:        uuid.NewString(),
		VariantID: in.VariantID,
		Delta:     in.Delta,
		Reason:    in.Reason,
		RefType:   in.RefType,
		RefID:     in.RefID,
		ActorID:   in.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	balance, err := l.store.AppendMovement(ctx, m, in.AllowNegative)
	if err != nil {
		return 0, err
	}
	l.log.Info("stock movement appended",
		zap.String("variant_id", in.VariantID),
		zap.Int("delta", in.Delta),
		zap.String("reason", string(in.Reason)),
		zap.Int("balance", balance))
	return balance, nil
}

func (l *Ledger) Balance(ctx context.Context, variantID string) (Balance, error) {
	return l.store.VariantBalance(ctx, variantID)
}

// Reconcile resums all movements for the variant and compares against the
// cached counter. Divergence is logged as an alarm and returned as
// *DivergenceError.
func (l *Ledger) Reconcile(ctx context.Context, variantID string) error {
	b, err := l.store.VariantBalance(ctx, variantID)
	if err != nil {
		return err
	}
	sum, err := l.store.SumMovements(ctx, variantID)
	if err != nil {
		return err
	}
	if b.Stock != sum {
		l.log.Error("ledger divergence detected",
			zap.String("variant_id", variantID),
			zap.Int("cached", b.Stock),
			zap.Int("sum", sum))
		return &DivergenceError{VariantID: variantID, Cached: b.Stock, Actual: sum}
	}
	return nil
}

// ReconcileAll runs Reconcile over every registered variant and returns the
// divergences found. A divergence on one variant does not stop the run.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]DivergenceError, error) {
	ids, err := l.store.VariantIDs(ctx)
	if err != nil {
		return nil, err
	}
	var diverged []DivergenceError
	for _, id := range ids {
		err := l.Reconcile(ctx, id)
		var d *DivergenceError
		if errors.As(err, &d) {
			diverged = append(diverged, *d)
			continue
		}
		if err != nil {
			return diverged, err
		}
	}
	return diverged, nil
}

func (l *Ledger) List(ctx context.Context, f ListFilter) ([]Movement, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return l.store.ListMovements(ctx, f)
}
