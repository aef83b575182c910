package payment

import (
	"context"
	"time"
)

// Store persists payments and refunds. CreateRefund and SetRefundStatus hold
// the payment row for the duration of their bound checks so two concurrent
// refunds cannot both claim the last refundable unit.
type Store interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)

	// SetPaymentOutcome compare-and-sets initiated -> success|failed.
	SetPaymentOutcome(ctx context.Context, id string, status Status, transactionID *string, paidAt *time.Time) error

	// CreateRefund inserts the refund after verifying, against the locked
	// payment row, that amount + successful refunds <= payment amount.
	CreateRefund(ctx context.Context, r Refund) error
	GetRefund(ctx context.Context, id string) (Refund, error)

	// SetRefundStatus advances initiated -> processing -> success|failed. On
	// success the bound is re-verified and the payment is marked refunded
	// once fully covered.
	SetRefundStatus(ctx context.Context, id string, status RefundStatus, at time.Time) error

	ListPayments(ctx context.Context, page, pageSize int) ([]Payment, int, error)
	ListRefunds(ctx context.Context, page, pageSize int) ([]Refund, int, error)
}
