package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/memstore"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func newCoordinator(t *testing.T) (*payment.Coordinator, *memstore.Store, string) {
	t.Helper()
	store := memstore.New()
	coord := payment.NewCoordinator(store, nil, "test", zap.NewNop())

	// Payments hang off an order row.
	ctx := context.Background()
	o := order.Order{
		ID:        "ord-1",
		Number:    order.NewNumber(time.Now().UTC()),
		Status:    order.StatusPending,
		Subtotal:  dec("1000"),
		Total:     dec("1000"),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	hist := order.StatusHistory{
		ID:        "h-1",
		OrderID:   o.ID,
		ToStatus:  order.StatusPending,
		ActorType: order.ActorSystem,
		CreatedAt: o.CreatedAt,
	}
	require.NoError(t, store.CreateOrder(ctx, o, nil, hist))
	return coord, store, o.ID
}

func paid(t *testing.T, coord *payment.Coordinator, orderID, amount string) payment.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := coord.Record(ctx, orderID, "razorpay", dec(amount), "")
	require.NoError(t, err)
	p, err = coord.MarkOutcome(ctx, p.ID, true, ptr("txn-1"))
	require.NoError(t, err)
	return p
}

func TestRecordAndOutcome(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)

	p, err := coord.Record(ctx, orderID, "razorpay", dec("1000"), "")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitiated, p.Status)
	assert.Equal(t, "INR", p.Currency)

	p, err = coord.MarkOutcome(ctx, p.ID, true, ptr("txn-9"))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)
	require.NotNil(t, p.PaidAt)
	require.NotNil(t, p.TransactionID)

	// The outcome is settled exactly once.
	_, err = coord.MarkOutcome(ctx, p.ID, false, nil)
	var invalid *payment.InvalidStatusError
	require.ErrorAs(t, err, &invalid)
}

func TestRecordValidation(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)

	_, err := coord.Record(ctx, orderID, "", dec("10"), "")
	require.Error(t, err)

	_, err = coord.Record(ctx, orderID, "razorpay", dec("0"), "")
	require.Error(t, err)

	_, err = coord.Record(ctx, "missing", "razorpay", dec("10"), "")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestFailedPaymentAllowsRetry(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)

	p1, err := coord.Record(ctx, orderID, "razorpay", dec("1000"), "")
	require.NoError(t, err)
	_, err = coord.MarkOutcome(ctx, p1.ID, false, nil)
	require.NoError(t, err)

	// Attempts are append-only; a fresh one opens after a failure.
	p2, err := coord.Record(ctx, orderID, "razorpay", dec("1000"), "")
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID, p2.ID)
}

func TestRefundBoundedByPaidAmount(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)
	p := paid(t, coord, orderID, "1000")

	_, err := coord.Refund(ctx, p.ID, dec("1500"), nil)
	var exceeds *payment.RefundExceedsPaymentError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, exceeds.Remaining.Equal(dec("1000")))

	r, err := coord.Refund(ctx, p.ID, dec("400"), ptr("damaged item"))
	require.NoError(t, err)
	assert.Equal(t, payment.RefundInitiated, r.Status)
}

func TestRefundRequiresSettledPayment(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)

	p, err := coord.Record(ctx, orderID, "razorpay", dec("1000"), "")
	require.NoError(t, err)

	_, err = coord.Refund(ctx, p.ID, dec("100"), nil)
	var invalid *payment.InvalidStatusError
	require.ErrorAs(t, err, &invalid)
}

func TestRefundLifecycleAndRollup(t *testing.T) {
	ctx := context.Background()
	coord, store, orderID := newCoordinator(t)
	p := paid(t, coord, orderID, "1000")

	r1, err := coord.Refund(ctx, p.ID, dec("600"), nil)
	require.NoError(t, err)

	// initiated -> success must pass through processing.
	_, err = coord.Advance(ctx, r1.ID, payment.RefundSuccess)
	var invalid *payment.InvalidStatusError
	require.ErrorAs(t, err, &invalid)

	r1, err = coord.Advance(ctx, r1.ID, payment.RefundProcessing)
	require.NoError(t, err)
	r1, err = coord.Advance(ctx, r1.ID, payment.RefundSuccess)
	require.NoError(t, err)
	assert.NotNil(t, r1.ProcessedAt)

	// Partially refunded: the payment stays success.
	fresh, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, fresh.Status)

	// The second refund is bounded by what is left.
	_, err = coord.Refund(ctx, p.ID, dec("500"), nil)
	var exceeds *payment.RefundExceedsPaymentError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, exceeds.Remaining.Equal(dec("400")))

	r2, err := coord.Refund(ctx, p.ID, dec("400"), nil)
	require.NoError(t, err)
	_, err = coord.Advance(ctx, r2.ID, payment.RefundProcessing)
	require.NoError(t, err)
	_, err = coord.Advance(ctx, r2.ID, payment.RefundSuccess)
	require.NoError(t, err)

	// Fully covered now; the payment rolls up to refunded.
	fresh, err = store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, fresh.Status)
}

func TestFailedRefundFreesTheSlot(t *testing.T) {
	ctx := context.Background()
	coord, _, orderID := newCoordinator(t)
	p := paid(t, coord, orderID, "1000")

	r, err := coord.Refund(ctx, p.ID, dec("1000"), nil)
	require.NoError(t, err)
	_, err = coord.Advance(ctx, r.ID, payment.RefundProcessing)
	require.NoError(t, err)
	_, err = coord.Advance(ctx, r.ID, payment.RefundFailed)
	require.NoError(t, err)

	// A failed refund never counts against the bound.
	r2, err := coord.Refund(ctx, p.ID, dec("1000"), nil)
	require.NoError(t, err)
	assert.Equal(t, payment.RefundInitiated, r2.Status)
}
