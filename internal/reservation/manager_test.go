package reservation_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/memstore"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

func newManager(t *testing.T) (*reservation.Manager, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return reservation.NewManager(store, 15*time.Minute, zap.NewNop()), store
}

func TestReserveReducesAvailability(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	_, err := mgr.Create(ctx, "v1", 4, nil, 0)
	require.NoError(t, err)

	available, err := mgr.Available(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	// The balance itself is untouched until conversion.
	b, err := store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)
}

func TestReserveRejectsOverAvailability(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	_, err := mgr.Create(ctx, "v1", 10, nil, 0)
	require.NoError(t, err)

	_, err = mgr.Create(ctx, "v1", 1, nil, 0)
	var oos *reservation.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 0, oos.Available)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	r, err := mgr.Create(ctx, "v1", 10, nil, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Release(ctx, r.ID))

	available, err := mgr.Available(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	got, err := mgr.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusReleased, got.Status)
	assert.NotNil(t, got.ReleasedAt)
}

func TestSweepExpiresDueHolds(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	r, err := mgr.Create(ctx, "v1", 3, nil, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	n, err := mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := mgr.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, got.Status)

	// Expired holds no longer count against availability.
	available, err := mgr.Available(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// Sweeping again touches nothing.
	n, err = mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConvertDebitsLedger(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	r, err := mgr.Create(ctx, "v1", 4, nil, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Convert(ctx, r.ID, "order-1"))

	b, err := store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 6, b.Stock)

	got, err := mgr.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConverted, got.Status)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, "order-1", *got.OrderID)

	movements, _, err := store.ListMovements(ctx, ledger.ListFilter{VariantID: "v1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, movements, 2)
}

func TestConvertExpiredFails(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	r, err := mgr.Create(ctx, "v1", 4, nil, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = mgr.Sweep(ctx)
	require.NoError(t, err)

	err = mgr.Convert(ctx, r.ID, "order-1")
	var expired *reservation.ExpiredError
	require.ErrorAs(t, err, &expired)

	// No debit happened.
	b, err := store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)
}

func TestUnconvertRestoresHoldAndStock(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	r, err := mgr.Create(ctx, "v1", 4, nil, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Convert(ctx, r.ID, "order-1"))
	require.NoError(t, mgr.Unconvert(ctx, r.ID))

	b, err := store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)

	got, err := mgr.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, got.Status)
	assert.Nil(t, got.OrderID)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)
	store.SeedVariant("v1", 10, 0)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Create(ctx, "v1", 1, nil, 0); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), granted.Load())
	available, err := mgr.Available(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestGetUnknownReservation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	_, err := mgr.Get(ctx, "nope")
	var notFound *reservation.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
