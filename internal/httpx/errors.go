package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP codes: missing records are 404,
// contended or depleted resources are 409, business-rule rejections are 422,
// everything else is treated as a bad request.
func statusFor(err error) int {
	var (
		resvNotFound  *reservation.NotFoundError
		resvExpired   *reservation.ExpiredError
		outOfStock    *reservation.OutOfStockError
		insufficient  *ledger.InsufficientStockError
		usageExceeded *coupon.UsageExceededError
		inactive      *coupon.InactiveError
		couponExpired *coupon.ExpiredError
		minNotMet     *coupon.MinNotMetError
		badTransition *order.InvalidTransitionError
		badPayStatus  *payment.InvalidStatusError
		refundExceeds *payment.RefundExceedsPaymentError
	)
	switch {
	case errors.Is(err, ledger.ErrVariantNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, payment.ErrRefundNotFound),
		errors.As(err, &resvNotFound):
		return http.StatusNotFound

	case errors.Is(err, order.ErrConflict),
		errors.As(err, &resvExpired),
		errors.As(err, &outOfStock),
		errors.As(err, &insufficient),
		errors.As(err, &usageExceeded):
		return http.StatusConflict

	case errors.As(err, &inactive),
		errors.As(err, &couponExpired),
		errors.As(err, &minNotMet),
		errors.As(err, &badTransition),
		errors.As(err, &badPayStatus),
		errors.As(err, &refundExceeds):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}
