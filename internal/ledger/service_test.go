package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/memstore"
)

func newLedger(t *testing.T) (*ledger.Ledger, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return ledger.New(store, zap.NewNop()), store
}

func TestAppendAdjustsBalance(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 10, 2)

	balance, err := led.Append(ctx, ledger.AppendInput{
		VariantID: "v1",
		Delta:     -3,
		Reason:    ledger.ReasonOrder,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	b, err := led.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 7, b.Stock)
	assert.False(t, b.LowStock)
}

func TestAppendRejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 5, 0)

	_, err := led.Append(ctx, ledger.AppendInput{
		VariantID: "v1",
		Delta:     -6,
		Reason:    ledger.ReasonOrder,
	})
	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 6, insufficient.Requested)

	// Nothing was written.
	b, err := led.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 5, b.Stock)
}

func TestAdminWriteoffMayGoNegative(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 2, 0)

	balance, err := led.Append(ctx, ledger.AppendInput{
		VariantID:     "v1",
		Delta:         -5,
		Reason:        ledger.ReasonAdminAdjustment,
		AllowNegative: true,
	})
	require.NoError(t, err)
	assert.Equal(t, -3, balance)
}

func TestAllowNegativeOnlyForAdminAdjustment(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 2, 0)

	_, err := led.Append(ctx, ledger.AppendInput{
		VariantID:     "v1",
		Delta:         -5,
		Reason:        ledger.ReasonOrder,
		AllowNegative: true,
	})
	require.Error(t, err)
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 2, 0)

	_, err := led.Append(ctx, ledger.AppendInput{VariantID: "v1", Delta: 0, Reason: ledger.ReasonOrder})
	require.Error(t, err)

	_, err = led.Append(ctx, ledger.AppendInput{VariantID: "v1", Delta: 1, Reason: "bogus"})
	require.Error(t, err)

	_, err = led.Append(ctx, ledger.AppendInput{VariantID: "missing", Delta: 1, Reason: ledger.ReasonReturn})
	require.ErrorIs(t, err, ledger.ErrVariantNotFound)
}

func TestLowStockFlag(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 4, 3)

	_, err := led.Append(ctx, ledger.AppendInput{VariantID: "v1", Delta: -1, Reason: ledger.ReasonOrder})
	require.NoError(t, err)

	b, err := led.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.Stock)
	assert.True(t, b.LowStock)
}

func TestReconcileDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 10, 0)

	require.NoError(t, led.Reconcile(ctx, "v1"))

	store.CorruptBalance("v1", 2)
	err := led.Reconcile(ctx, "v1")
	var div *ledger.DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, 12, div.Cached)
	assert.Equal(t, 10, div.Actual)
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 10, 0)
	store.SeedVariant("v2", 5, 0)
	store.CorruptBalance("v2", -1)

	diverged, err := led.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, diverged, 1)
	assert.Equal(t, "v2", diverged[0].VariantID)
}

func TestListMovementsPaginates(t *testing.T) {
	ctx := context.Background()
	led, store := newLedger(t)
	store.SeedVariant("v1", 100, 0)

	for i := 0; i < 5; i++ {
		_, err := led.Append(ctx, ledger.AppendInput{VariantID: "v1", Delta: -1, Reason: ledger.ReasonOrder})
		require.NoError(t, err)
	}

	movements, total, err := led.List(ctx, ledger.ListFilter{VariantID: "v1", Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, total) // opening movement plus five debits
	assert.Len(t, movements, 3)

	movements, _, err = led.List(ctx, ledger.ListFilter{VariantID: "v1", Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, movements, 3)
}
