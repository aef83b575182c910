package order_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/memstore"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

type env struct {
	store   *memstore.Store
	resv    *reservation.Manager
	coupons *coupon.Engine
	orders  *order.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	log := zap.NewNop()
	resv := reservation.NewManager(store, 15*time.Minute, log)
	coupons := coupon.NewEngine(store, log)
	pricing := order.Pricing{
		FreeShippingThreshold: dec("4000"),
		ShippingCost:          dec("500"),
		TaxRate:               dec("0.08"),
	}
	orders := order.NewService(store, resv, coupons, pricing, nil, "test", log)
	return &env{store: store, resv: resv, coupons: coupons, orders: orders}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

// reserve seeds nothing; callers seed the variant first.
func (e *env) reserve(t *testing.T, variantID string, qty int) reservation.Reservation {
	t.Helper()
	r, err := e.resv.Create(context.Background(), variantID, qty, nil, 0)
	require.NoError(t, err)
	return r
}

func TestNumberFormat(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	n := order.NewNumber(now)
	assert.Regexp(t, regexp.MustCompile(`^CNF-20260314-[A-HJ-NP-Z2-9]{10}$`), n)
	assert.NotEqual(t, n, order.NewNumber(now))
}

func TestCheckoutHappyPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	r := e.reserve(t, "v1", 2)

	o, err := e.orders.Checkout(ctx, order.CheckoutInput{
		Actor: order.Actor{Type: order.ActorUser},
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      2,
			UnitPrice:     dec("1000"),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Subtotal.Equal(dec("2000")), "subtotal %s", o.Subtotal)
	assert.True(t, o.ShippingCost.Equal(dec("500")), "shipping %s", o.ShippingCost)
	assert.True(t, o.Tax.Equal(dec("160")), "tax %s", o.Tax)
	assert.True(t, o.Total.Equal(dec("2660")), "total %s", o.Total)

	// Stock moved from held to sold.
	b, err := e.store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 8, b.Stock)

	got, err := e.resv.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConverted, got.Status)

	// Creation wrote exactly one history row, with no prior status.
	hist, total, err := e.orders.ListHistory(ctx, o.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hist, 1)
	assert.Nil(t, hist[0].FromStatus)
	assert.Equal(t, order.StatusPending, hist[0].ToStatus)
	assert.Equal(t, order.ActorUser, hist[0].ActorType)

	_, items, err := e.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Total.Equal(dec("2000")))
}

func TestCheckoutFreeShippingAtThreshold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	r := e.reserve(t, "v1", 4)

	o, err := e.orders.Checkout(ctx, order.CheckoutInput{
		Actor: order.Actor{Type: order.ActorUser},
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      4,
			UnitPrice:     dec("1000"),
		}},
	})
	require.NoError(t, err)
	assert.True(t, o.ShippingCost.IsZero(), "shipping %s", o.ShippingCost)
}

func TestCheckoutWithCoupon(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	r := e.reserve(t, "v1", 2)

	c, err := e.coupons.Create(ctx, coupon.CreateInput{
		Code: "SAVE10", Type: coupon.TypePercentage, Value: dec("10"), UsageLimit: ptr(5),
	})
	require.NoError(t, err)

	o, err := e.orders.Checkout(ctx, order.CheckoutInput{
		Actor:      order.Actor{Type: order.ActorUser},
		CouponCode: ptr("SAVE10"),
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      2,
			UnitPrice:     dec("1000"),
		}},
	})
	require.NoError(t, err)
	assert.True(t, o.Discount.Equal(dec("200")), "discount %s", o.Discount)
	assert.True(t, o.Total.Equal(dec("2460")), "total %s", o.Total)

	// Usage consumed and the per-order record written.
	fresh, err := e.store.CouponByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.UsageCount)

	ocs := e.store.OrderCouponsFor(o.ID)
	require.Len(t, ocs, 1)
	assert.Equal(t, "SAVE10", ocs[0].Code)
	assert.True(t, ocs[0].DiscountApplied.Equal(dec("200")))
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	r := e.reserve(t, "v1", 2)

	ref := "checkout-abc"
	in := order.CheckoutInput{
		CheckoutRef: &ref,
		Actor:       order.Actor{Type: order.ActorUser},
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      2,
			UnitPrice:     dec("1000"),
		}},
	}

	first, err := e.orders.Checkout(ctx, in)
	require.NoError(t, err)

	second, err := e.orders.Checkout(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// No double debit.
	b, err := e.store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 8, b.Stock)
}

func TestCheckoutCompensationRollsEverythingBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	r := e.reserve(t, "v1", 2)

	c, err := e.coupons.Create(ctx, coupon.CreateInput{
		Code: "SAVE10", Type: coupon.TypePercentage, Value: dec("10"), UsageLimit: ptr(1),
	})
	require.NoError(t, err)

	// Two lines against the same hold: the second conversion fails after the
	// coupon was consumed and the order created, forcing full compensation.
	line := order.CheckoutLine{
		ReservationID: r.ID,
		VariantID:     "v1",
		ProductName:   "Widget",
		Quantity:      2,
		UnitPrice:     dec("1000"),
	}
	ref := "checkout-dup"
	_, err = e.orders.Checkout(ctx, order.CheckoutInput{
		CheckoutRef: &ref,
		Actor:       order.Actor{Type: order.ActorUser},
		CouponCode:  ptr("SAVE10"),
		Lines:       []order.CheckoutLine{line, line},
	})
	require.Error(t, err)

	// Hold back to active, stock untouched.
	got, err := e.resv.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, got.Status)
	b, err := e.store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)

	// Coupon slot handed back.
	fresh, err := e.store.CouponByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.UsageCount)

	// The half-created order is gone, so the ref is reusable.
	_, err = e.store.OrderByCheckoutRef(ctx, ref)
	require.ErrorIs(t, err, order.ErrNotFound)

	o, err := e.orders.Checkout(ctx, order.CheckoutInput{
		CheckoutRef: &ref,
		Actor:       order.Actor{Type: order.ActorUser},
		Lines:       []order.CheckoutLine{line},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestCheckoutRejectsExpiredHold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)

	r, err := e.resv.Create(ctx, "v1", 2, nil, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = e.orders.Checkout(ctx, order.CheckoutInput{
		Actor: order.Actor{Type: order.ActorUser},
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      2,
			UnitPrice:     dec("1000"),
		}},
	})
	var expired *reservation.ExpiredError
	require.ErrorAs(t, err, &expired)
}

func (e *env) placeOrder(t *testing.T, qty int) order.Order {
	t.Helper()
	r := e.reserve(t, "v1", qty)
	o, err := e.orders.Checkout(context.Background(), order.CheckoutInput{
		Actor: order.Actor{Type: order.ActorUser},
		Lines: []order.CheckoutLine{{
			ReservationID: r.ID,
			VariantID:     "v1",
			ProductName:   "Widget",
			Quantity:      qty,
			UnitPrice:     dec("1000"),
		}},
	})
	require.NoError(t, err)
	return o
}

func TestTransitionChainWritesFullTrail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	o := e.placeOrder(t, 2)

	admin := order.Actor{Type: order.ActorAdmin, ID: ptr("adm-1")}
	for _, to := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		_, err := e.orders.Transition(ctx, o.ID, to, admin, nil)
		require.NoError(t, err)
	}

	hist, total, err := e.orders.ListHistory(ctx, o.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, hist, 4)

	// The trail chains: each row's from matches the previous row's to.
	assert.Nil(t, hist[0].FromStatus)
	for i := 1; i < len(hist); i++ {
		require.NotNil(t, hist[i].FromStatus)
		assert.Equal(t, hist[i-1].ToStatus, *hist[i].FromStatus)
	}
	assert.Equal(t, order.StatusDelivered, hist[3].ToStatus)
}

func TestCancelFromProcessingRestocks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	o := e.placeOrder(t, 3)

	admin := order.Actor{Type: order.ActorAdmin}
	_, err := e.orders.Transition(ctx, o.ID, order.StatusProcessing, admin, nil)
	require.NoError(t, err)
	_, err = e.orders.Transition(ctx, o.ID, order.StatusCancelled, admin, ptr("customer request"))
	require.NoError(t, err)

	b, err := e.store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)

	// Round trip leaves a full audit trail: debit plus compensating credit.
	movements, _, err := e.store.ListMovements(ctx, ledger.ListFilter{VariantID: "v1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	var cancels int
	for _, m := range movements {
		if m.Reason == ledger.ReasonCancel {
			cancels++
		}
	}
	assert.Equal(t, 1, cancels)
}

func TestCancelFromShippedDoesNotRestock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	o := e.placeOrder(t, 3)

	admin := order.Actor{Type: order.ActorAdmin}
	for _, to := range []order.Status{order.StatusProcessing, order.StatusShipped} {
		_, err := e.orders.Transition(ctx, o.ID, to, admin, nil)
		require.NoError(t, err)
	}
	_, err := e.orders.Transition(ctx, o.ID, order.StatusCancelled, admin, nil)
	require.NoError(t, err)

	// Goods already left the warehouse; stock stays sold until a return.
	b, err := e.store.VariantBalance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 7, b.Stock)
}

func TestInvalidTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	o := e.placeOrder(t, 2)

	admin := order.Actor{Type: order.ActorAdmin}

	// pending cannot skip to shipped.
	_, err := e.orders.Transition(ctx, o.ID, order.StatusShipped, admin, nil)
	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	for _, to := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		_, err = e.orders.Transition(ctx, o.ID, to, admin, nil)
		require.NoError(t, err)
	}

	// delivered is terminal.
	_, err = e.orders.Transition(ctx, o.ID, order.StatusCancelled, admin, nil)
	require.ErrorAs(t, err, &invalid)

	// Only one history row per successful transition.
	_, total, err := e.orders.ListHistory(ctx, o.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SeedVariant("v1", 10, 0)
	o := e.placeOrder(t, 2)

	admin := order.Actor{Type: order.ActorAdmin, ID: ptr("adm-1")}
	n, err := e.orders.AddNote(ctx, o.ID, "called the customer", admin)
	require.NoError(t, err)
	assert.Equal(t, o.ID, n.OrderID)

	_, err = e.orders.AddNote(ctx, o.ID, "", admin)
	require.Error(t, err)

	notes, err := e.orders.ListNotes(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "called the customer", notes[0].Body)

	_, err = e.orders.AddNote(ctx, "missing", "x", admin)
	require.ErrorIs(t, err, order.ErrNotFound)
}
