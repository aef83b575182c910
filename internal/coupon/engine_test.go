package coupon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/memstore"
)

func newEngine(t *testing.T) *coupon.Engine {
	t.Helper()
	return coupon.NewEngine(memstore.New(), zap.NewNop())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func TestCreateNormalizesCode(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	c, err := eng.Create(ctx, coupon.CreateInput{
		Code:  "  save10 ",
		Type:  coupon.TypePercentage,
		Value: dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.True(t, c.IsActive)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	_, err := eng.Create(ctx, coupon.CreateInput{Code: "X", Type: "weird", Value: dec("1")})
	require.Error(t, err)

	_, err = eng.Create(ctx, coupon.CreateInput{Code: "X", Type: coupon.TypePercentage, Value: dec("120")})
	require.Error(t, err)

	_, err = eng.Create(ctx, coupon.CreateInput{Code: "X", Type: coupon.TypeFlat, Value: dec("-5")})
	require.Error(t, err)
}

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name     string
		typ      coupon.Type
		value    string
		max      *decimal.Decimal
		subtotal string
		want     string
	}{
		{"percentage", coupon.TypePercentage, "10", nil, "2500", "250"},
		{"percentage rounds", coupon.TypePercentage, "7.5", nil, "999", "74.93"},
		{"percentage capped by max", coupon.TypePercentage, "50", ptr(dec("300")), "2500", "300"},
		{"flat", coupon.TypeFlat, "200", nil, "2500", "200"},
		{"flat exceeds subtotal", coupon.TypeFlat, "5000", nil, "2500", "2500"},
		{"zero subtotal", coupon.TypePercentage, "10", nil, "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := coupon.Coupon{Type: tc.typ, Value: dec(tc.value), MaxDiscount: tc.max}
			got := coupon.ComputeDiscount(c, dec(tc.subtotal))
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestValidatePercentageDiscount(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	now := time.Now().UTC()

	_, err := eng.Create(ctx, coupon.CreateInput{
		Code:        "SAVE10",
		Type:        coupon.TypePercentage,
		Value:       dec("10"),
		MaxDiscount: ptr(dec("100")),
	})
	require.NoError(t, err)

	_, discount, err := eng.Validate(ctx, "save10", dec("500"), now)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("50")), "got %s", discount)

	// Cap kicks in on large subtotals.
	_, discount, err = eng.Validate(ctx, "SAVE10", dec("5000"), now)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("100")), "got %s", discount)
}

func TestValidateFlatDiscountNeverExceedsSubtotal(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	now := time.Now().UTC()

	_, err := eng.Create(ctx, coupon.CreateInput{
		Code:  "FLAT200",
		Type:  coupon.TypeFlat,
		Value: dec("200"),
	})
	require.NoError(t, err)

	_, discount, err := eng.Validate(ctx, "FLAT200", dec("150"), now)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("150")), "got %s", discount)
}

func TestValidateRejections(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	now := time.Now().UTC()

	// Unknown codes read as inactive, not as not-found.
	_, _, err := eng.Validate(ctx, "NOPE", dec("100"), now)
	var inactive *coupon.InactiveError
	require.ErrorAs(t, err, &inactive)

	past := now.Add(-time.Hour)
	_, err = eng.Create(ctx, coupon.CreateInput{
		Code: "OLD", Type: coupon.TypeFlat, Value: dec("10"), ValidTo: &past,
	})
	require.NoError(t, err)
	_, _, err = eng.Validate(ctx, "OLD", dec("100"), now)
	var expired *coupon.ExpiredError
	require.ErrorAs(t, err, &expired)

	_, err = eng.Create(ctx, coupon.CreateInput{
		Code: "BIGONLY", Type: coupon.TypeFlat, Value: dec("10"),
		MinOrderAmount: ptr(dec("1000")),
	})
	require.NoError(t, err)
	_, _, err = eng.Validate(ctx, "BIGONLY", dec("999"), now)
	var minNotMet *coupon.MinNotMetError
	require.ErrorAs(t, err, &minNotMet)

	deactivated, err := eng.Create(ctx, coupon.CreateInput{
		Code: "GONE", Type: coupon.TypeFlat, Value: dec("10"),
	})
	require.NoError(t, err)
	require.NoError(t, eng.Deactivate(ctx, deactivated.ID))
	_, _, err = eng.Validate(ctx, "GONE", dec("100"), now)
	require.ErrorAs(t, err, &inactive)
}

func TestApplyHonorsUsageLimit(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	now := time.Now().UTC()

	c, err := eng.Create(ctx, coupon.CreateInput{
		Code: "ONCE", Type: coupon.TypeFlat, Value: dec("10"), UsageLimit: ptr(2),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Apply(ctx, c.ID))
	require.NoError(t, eng.Apply(ctx, c.ID))

	err = eng.Apply(ctx, c.ID)
	var exceeded *coupon.UsageExceededError
	require.ErrorAs(t, err, &exceeded)

	// Validate pre-checks the cap as well.
	_, _, err = eng.Validate(ctx, "ONCE", dec("100"), now)
	require.ErrorAs(t, err, &exceeded)

	// Compensation frees a slot again.
	require.NoError(t, eng.Release(ctx, c.ID))
	require.NoError(t, eng.Apply(ctx, c.ID))
}

func TestApplyLastSlotRace(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	c, err := eng.Create(ctx, coupon.CreateInput{
		Code: "LAST", Type: coupon.TypeFlat, Value: dec("10"), UsageLimit: ptr(1),
	})
	require.NoError(t, err)

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = eng.Apply(ctx, c.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var exceeded *coupon.UsageExceededError
			assert.ErrorAs(t, err, &exceeded)
		}
	}
	assert.Equal(t, 1, succeeded)
}
