package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/coupon"
	kafkax "github.com/cnfstore/commerce-core/internal/kafka"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Pricing holds the denormalized site settings used for checkout totals.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
	TaxRate               decimal.Decimal
}

// Quote computes shipping and tax for a subtotal.
func (p Pricing) Quote(subtotal decimal.Decimal) (shipping, tax decimal.Decimal) {
	shipping = p.ShippingCost
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax = subtotal.Mul(p.TaxRate).Round(2)
	return shipping, tax
}

// Service orchestrates checkout and owns order status transitions with their
// audit trail.
type Service struct {
	store    Store
	resv     *reservation.Manager
	coupons  *coupon.Engine
	pricing  Pricing
	producer Publisher
	name     string
	log      *zap.Logger
}

func NewService(store Store, resv *reservation.Manager, coupons *coupon.Engine, pricing Pricing, producer Publisher, serviceName string, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		resv:     resv,
		coupons:  coupons,
		pricing:  pricing,
		producer: producer,
		name:     serviceName,
		log:      log,
	}
}

// CheckoutLine carries the cart snapshot for one reservation: variant,
// quantity and the price captured for the order items.
type CheckoutLine struct {
	ReservationID string
	VariantID     string
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
}

type CheckoutInput struct {
	CheckoutRef *string
	CartID      *string
	UserID      *string
	Actor       Actor
	Lines       []CheckoutLine
	CouponCode  *string
	TraceID     string
}

// Checkout runs the multi-step saga: verify holds, consume the coupon, create
// the order, convert the holds into ledger movements. Any step failure undoes
// the already-completed steps in reverse; there is no implicit rollback.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (Order, error) {
	if len(in.Lines) == 0 {
		return Order{}, fmt.Errorf("checkout requires at least one line")
	}

	// Idempotent replay via checkout ref.
	if in.CheckoutRef != nil {
		o, err := s.store.OrderByCheckoutRef(ctx, *in.CheckoutRef)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Order{}, err
		}
	}

	now := time.Now().UTC()

	// Step 1: every hold must still be active and unexpired.
	subtotal := decimal.Zero
	for _, ln := range in.Lines {
		r, err := s.resv.Get(ctx, ln.ReservationID)
		if err != nil {
			return Order{}, err
		}
		if r.Status != reservation.StatusActive || r.ExpiredAt(now) {
			return Order{}, &reservation.ExpiredError{ReservationID: ln.ReservationID}
		}
		if r.VariantID != ln.VariantID || r.Quantity != ln.Quantity {
			return Order{}, fmt.Errorf("reservation %s does not match cart line (variant %s qty %d)",
				ln.ReservationID, ln.VariantID, ln.Quantity)
		}
		subtotal = subtotal.Add(ln.UnitPrice.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}

	// Compensations run in reverse on any later failure. They use a context
	// detached from request cancellation so a dropped client cannot leave a
	// half-applied order behind.
	compCtx := context.WithoutCancel(ctx)
	var comps []func()
	fail := func(orig error) (Order, error) {
		for i := len(comps) - 1; i >= 0; i-- {
			comps[i]()
		}
		s.log.Warn("checkout compensated", zap.Error(orig))
		return Order{}, orig
	}

	// Step 2: coupon.
	var cpn *coupon.Coupon
	discount := decimal.Zero
	if in.CouponCode != nil && *in.CouponCode != "" {
		c, d, err := s.coupons.Validate(ctx, *in.CouponCode, subtotal, now)
		if err != nil {
			return Order{}, err
		}
		if err := s.coupons.Apply(ctx, c.ID); err != nil {
			return Order{}, err
		}
		couponID := c.ID
		comps = append(comps, func() {
			if err := s.coupons.Release(compCtx, couponID); err != nil {
				s.log.Error("coupon release failed during compensation",
					zap.String("coupon_id", couponID), zap.Error(err))
			}
		})
		cpn, discount = &c, d
	}

	// Step 3: create the order and its items from cart snapshot values.
	shipping, tax := s.pricing.Quote(subtotal)
	o := Order{
		ID:           uuid.NewString(),
		Number:       NewNumber(now),
		CartID:       in.CartID,
		UserID:       in.UserID,
		CheckoutRef:  in.CheckoutRef,
		Status:       StatusPending,
		Subtotal:     subtotal,
		Discount:     discount,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        subtotal.Sub(discount).Add(shipping).Add(tax),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	items := make([]OrderItem, 0, len(in.Lines))
	for _, ln := range in.Lines {
		items = append(items, OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			VariantID:   ln.VariantID,
			ProductName: ln.ProductName,
			Quantity:    ln.Quantity,
			UnitPrice:   ln.UnitPrice,
			Total:       ln.UnitPrice.Mul(decimal.NewFromInt(int64(ln.Quantity))),
		})
	}
	hist := StatusHistory{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		ToStatus:  StatusPending,
		ActorType: in.Actor.Type,
		ActorID:   in.Actor.ID,
		CreatedAt: now,
	}
	if err := s.store.CreateOrder(ctx, o, items, hist); err != nil {
		return fail(err)
	}
	orderID := o.ID
	comps = append(comps, func() {
		if err := s.store.DeleteOrder(compCtx, orderID); err != nil {
			s.log.Error("order delete failed during compensation",
				zap.String("order_id", orderID), zap.Error(err))
		}
	})

	if cpn != nil {
		if err := s.coupons.RecordApplied(ctx, o.ID, *cpn, discount); err != nil {
			return fail(err)
		}
	}

	// Step 4: convert each hold into a ledger movement.
	for _, ln := range in.Lines {
		if err := s.resv.Convert(ctx, ln.ReservationID, o.ID); err != nil {
			return fail(err)
		}
		resID := ln.ReservationID
		comps = append(comps, func() {
			if err := s.resv.Unconvert(compCtx, resID); err != nil {
				s.log.Error("reservation unconvert failed during compensation",
					zap.String("reservation_id", resID), zap.Error(err))
			}
		})
	}

	s.publishPlaced(o, items, in.TraceID)
	s.log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("total", o.Total.String()))
	return o, nil
}

const maxTransitionRetries = 3

// Transition moves the order to toStatus, appending exactly one history row.
// The stored status is re-read and compare-and-set; concurrent writers are
// retried a bounded number of times before ErrConflict surfaces.
func (s *Service) Transition(ctx context.Context, orderID string, to Status, actor Actor, note *string) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("unknown order status %q", to)
	}

	backoff := 25 * time.Millisecond
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		o, _, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		from := o.Status
		if !CanTransition(from, to) {
			return Order{}, &InvalidTransitionError{OrderID: orderID, From: from, To: to}
		}

		now := time.Now().UTC()
		fromCopy := from
		hist := StatusHistory{
			ID:         uuid.NewString(),
			OrderID:    orderID,
			FromStatus: &fromCopy,
			ToStatus:   to,
			ActorType:  actor.Type,
			ActorID:    actor.ID,
			Note:       note,
			CreatedAt:  now,
		}
		restock := to == StatusCancelled && from.Restocks()

		err = s.store.UpdateOrderStatus(ctx, orderID, from, to, hist, restock)
		if errors.Is(err, ErrConflict) {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Order{}, ctx.Err()
			}
			backoff *= 2
			continue
		}
		if err != nil {
			return Order{}, err
		}

		s.publishStatusChanged(orderID, from, to, actor, restock)
		s.log.Info("order status updated",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("actor_type", string(actor.Type)))
		o.Status = to
		o.UpdatedAt = now
		return o, nil
	}
	return Order{}, ErrConflict
}

func (s *Service) AddNote(ctx context.Context, orderID, body string, actor Actor) (Note, error) {
	if body == "" {
		return Note{}, fmt.Errorf("note body must not be empty")
	}
	if _, _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return Note{}, err
	}
	n := Note{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Body:      body,
		ActorType: actor.Type,
		ActorID:   actor.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddOrderNote(ctx, n); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, []OrderItem, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListHistory(ctx context.Context, orderID string, page, pageSize int) ([]StatusHistory, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return s.store.ListStatusHistory(ctx, orderID, page, pageSize)
}

func (s *Service) ListNotes(ctx context.Context, orderID string) ([]Note, error) {
	return s.store.ListOrderNotes(ctx, orderID)
}

func (s *Service) publishPlaced(o Order, items []OrderItem, traceID string) {
	if s.producer == nil {
		return
	}
	snaps := make([]ItemSnapshot, 0, len(items))
	for _, it := range items {
		snaps = append(snaps, ItemSnapshot{VariantID: it.VariantID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.name,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(OrderPlacedPayload{
			OrderID:  o.ID,
			Number:   o.Number,
			UserID:   o.UserID,
			Items:    snaps,
			Subtotal: o.Subtotal,
			Discount: o.Discount,
			Total:    o.Total,
		}),
	}
	s.producer.Publish(PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishStatusChanged(orderID string, from, to Status, actor Actor, restocked bool) {
	if s.producer == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.name,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(OrderStatusChangedPayload{
			OrderID:    orderID,
			FromStatus: from,
			ToStatus:   to,
			ActorType:  actor.Type,
		}),
	}
	s.producer.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if to == StatusCancelled {
		cv := Envelope{
			EventID:       uuid.NewString(),
			EventType:     EventOrderCancelled,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      s.name,
			CorrelationID: orderID,
			Payload:       kafkax.MustMarshal(OrderCancelledPayload{OrderID: orderID, Restocked: restocked}),
		}
		s.producer.Publish(PartitionKey(orderID), kafkax.MustMarshal(cv),
			kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCancelled)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}
}
