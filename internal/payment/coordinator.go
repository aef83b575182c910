package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	kafkax "github.com/cnfstore/commerce-core/internal/kafka"
	"github.com/cnfstore/commerce-core/internal/order"
)

// Coordinator records payment attempts and bounds refunds. A successful
// payment is announced as an event for the fulfillment worker to react to;
// the coordinator never forces an order transition itself.
type Coordinator struct {
	store    Store
	producer order.Publisher
	name     string
	log      *zap.Logger
}

func NewCoordinator(store Store, producer order.Publisher, serviceName string, log *zap.Logger) *Coordinator {
	return &Coordinator{store: store, producer: producer, name: serviceName, log: log}
}

// Record opens a new payment attempt in status initiated.
func (c *Coordinator) Record(ctx context.Context, orderID, provider string, amount decimal.Decimal, currency string) (Payment, error) {
	if provider == "" {
		return Payment{}, fmt.Errorf("payment provider must not be empty")
	}
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("payment amount must be positive")
	}
	if currency == "" {
		currency = "INR"
	}
	now := time.Now().UTC()
	p := Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Provider:  provider,
		Status:    StatusInitiated,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreatePayment(ctx, p); err != nil {
		return Payment{}, err
	}
	c.log.Info("payment attempt recorded",
		zap.String("payment_id", p.ID),
		zap.String("order_id", orderID),
		zap.String("provider", provider),
		zap.String("amount", amount.String()))
	return p, nil
}

// MarkOutcome resolves an initiated attempt. On success the paid timestamp is
// stamped and a payment.succeeded event is published.
func (c *Coordinator) MarkOutcome(ctx context.Context, paymentID string, success bool, transactionID *string) (Payment, error) {
	status := StatusFailed
	var paidAt *time.Time
	if success {
		status = StatusSuccess
		t := time.Now().UTC()
		paidAt = &t
	}
	if err := c.store.SetPaymentOutcome(ctx, paymentID, status, transactionID, paidAt); err != nil {
		return Payment{}, err
	}
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if success {
		c.publishSucceeded(p)
	}
	c.log.Info("payment outcome recorded",
		zap.String("payment_id", paymentID),
		zap.String("status", string(status)))
	return p, nil
}

// Refund opens a refund against a paid payment, bounded by the amount not yet
// successfully refunded.
func (c *Coordinator) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason *string) (Refund, error) {
	if !amount.IsPositive() {
		return Refund{}, fmt.Errorf("refund amount must be positive")
	}
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Refund{}, err
	}
	if p.Status != StatusSuccess && p.Status != StatusRefunded {
		return Refund{}, &InvalidStatusError{PaymentID: paymentID, From: string(p.Status), To: "refund"}
	}
	now := time.Now().UTC()
	r := Refund{
		ID:        uuid.NewString(),
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    reason,
		Status:    RefundInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateRefund(ctx, r); err != nil {
		return Refund{}, err
	}
	c.log.Info("refund initiated",
		zap.String("refund_id", r.ID),
		zap.String("payment_id", paymentID),
		zap.String("amount", amount.String()))
	return r, nil
}

// Advance moves a refund along initiated -> processing -> success|failed.
func (c *Coordinator) Advance(ctx context.Context, refundID string, to RefundStatus) (Refund, error) {
	if err := c.store.SetRefundStatus(ctx, refundID, to, time.Now().UTC()); err != nil {
		return Refund{}, err
	}
	return c.store.GetRefund(ctx, refundID)
}

func (c *Coordinator) GetPayment(ctx context.Context, id string) (Payment, error) {
	return c.store.GetPayment(ctx, id)
}

func (c *Coordinator) ListPayments(ctx context.Context, page, pageSize int) ([]Payment, int, error) {
	return c.store.ListPayments(ctx, clampPage(page), clampSize(pageSize))
}

func (c *Coordinator) ListRefunds(ctx context.Context, page, pageSize int) ([]Refund, int, error) {
	return c.store.ListRefunds(ctx, clampPage(page), clampSize(pageSize))
}

func clampPage(p int) int {
	if p < 1 {
		return 1
	}
	return p
}

func clampSize(s int) int {
	if s < 1 || s > 100 {
		return 20
	}
	return s
}

func (c *Coordinator) publishSucceeded(p Payment) {
	if c.producer == nil {
		return
	}
	ev := order.Envelope{
		EventID:       uuid.NewString(),
		EventType:     order.EventPaymentSucceeded,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.name,
		CorrelationID: p.OrderID,
		Payload: kafkax.MustMarshal(order.PaymentSucceededPayload{
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			Amount:    p.Amount,
		}),
	}
	c.producer.Publish(order.PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(order.EventPaymentSucceeded)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
