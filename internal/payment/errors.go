package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")
)

// RefundExceedsPaymentError means the requested amount plus prior successful
// refunds would exceed what was actually paid.
type RefundExceedsPaymentError struct {
	PaymentID string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *RefundExceedsPaymentError) Error() string {
	return fmt.Sprintf("refund of %s exceeds remaining refundable amount %s for payment %s",
		e.Requested, e.Remaining, e.PaymentID)
}

type InvalidStatusError struct {
	PaymentID string
	From      string
	To        string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("payment %s: invalid status change %s -> %s", e.PaymentID, e.From, e.To)
}
