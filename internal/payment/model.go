package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

type RefundStatus string

const (
	RefundInitiated  RefundStatus = "initiated"
	RefundProcessing RefundStatus = "processing"
	RefundSuccess    RefundStatus = "success"
	RefundFailed     RefundStatus = "failed"
)

// Payment is one attempt against an order; attempts are append-only.
type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	Provider      string          `json:"provider"`
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Refund against a payment. The sum of successful refunds never exceeds the
// payment amount.
type Refund struct {
	ID          string          `json:"id"`
	PaymentID   string          `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      *string         `json:"reason,omitempty"`
	Status      RefundStatus    `json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
