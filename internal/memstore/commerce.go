package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

// --- coupon.Store ---

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.couponsByCode[c.Code]; ok {
		return fmt.Errorf("coupon code %s already exists", c.Code)
	}
	cp := c
	s.coupons[c.ID] = &cp
	s.couponsByCode[c.Code] = c.ID
	return nil
}

func (s *Store) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.couponsByCode[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return *s.coupons[id], nil
}

func (s *Store) CouponByID(ctx context.Context, id string) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return *c, nil
}

func (s *Store) ApplyCoupon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return &coupon.UsageExceededError{Code: c.Code}
	}
	c.UsageCount++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReleaseCouponUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.UsageCount > 0 {
		c.UsageCount--
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) RecordOrderCoupon(ctx context.Context, oc coupon.OrderCoupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCoupons = append(s.orderCoupons, oc)
	return nil
}

func (s *Store) SetCouponActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListCoupons(ctx context.Context, page, pageSize int) ([]coupon.Coupon, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]coupon.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		all = append(all, *c)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page, pageSize), total, nil
}

// OrderCouponsFor returns the discount records of one order. Test hook.
func (s *Store) OrderCouponsFor(orderID string) []coupon.OrderCoupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []coupon.OrderCoupon
	for _, oc := range s.orderCoupons {
		if oc.OrderID == orderID {
			out = append(out, oc)
		}
	}
	return out
}

// --- order.Store ---

func (s *Store) CreateOrder(ctx context.Context, o order.Order, items []order.OrderItem, hist order.StatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if o.CheckoutRef != nil {
		if _, ok := s.ordersByRef[*o.CheckoutRef]; ok {
			return fmt.Errorf("checkout ref %s already used", *o.CheckoutRef)
		}
		s.ordersByRef[*o.CheckoutRef] = o.ID
	}
	cp := o
	s.orders[o.ID] = &cp
	s.items[o.ID] = append([]order.OrderItem(nil), items...)
	s.history[o.ID] = []order.StatusHistory{hist}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.CheckoutRef != nil {
		delete(s.ordersByRef, *o.CheckoutRef)
	}
	delete(s.orders, id)
	delete(s.items, id)
	delete(s.history, id)
	delete(s.notes, id)
	kept := s.orderCoupons[:0]
	for _, oc := range s.orderCoupons {
		if oc.OrderID != id {
			kept = append(kept, oc)
		}
	}
	s.orderCoupons = kept
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, []order.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, nil, order.ErrNotFound
	}
	return *o, append([]order.OrderItem(nil), s.items[id]...), nil
}

func (s *Store) OrderByCheckoutRef(ctx context.Context, ref string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ordersByRef[ref]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return *s.orders[id], nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to order.Status, hist order.StatusHistory, restock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrConflict
	}
	if restock {
		ref := ledger.RefOrder
		for _, r := range s.reservations {
			if r.OrderID == nil || *r.OrderID != orderID || r.Status != reservation.StatusConverted {
				continue
			}
			if _, err := s.appendLocked(ledger.Movement{
				ID:        fmt.Sprintf("mv-restock-%s", r.ID),
				VariantID: r.VariantID,
				Delta:     r.Quantity,
				Reason:    ledger.ReasonCancel,
				RefType:   &ref,
				RefID:     &orderID,
				CreatedAt: hist.CreatedAt,
			}, false); err != nil {
				return err
			}
		}
	}
	o.Status = to
	o.UpdatedAt = hist.CreatedAt
	s.history[orderID] = append(s.history[orderID], hist)
	return nil
}

func (s *Store) AddOrderNote(ctx context.Context, n order.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[n.OrderID]; !ok {
		return order.ErrNotFound
	}
	s.notes[n.OrderID] = append(s.notes[n.OrderID], n)
	return nil
}

func (s *Store) ListOrderNotes(ctx context.Context, orderID string) ([]order.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return nil, order.ErrNotFound
	}
	return append([]order.Note(nil), s.notes[orderID]...), nil
}

func (s *Store) ListStatusHistory(ctx context.Context, orderID string, page, pageSize int) ([]order.StatusHistory, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return nil, 0, order.ErrNotFound
	}
	all := append([]order.StatusHistory(nil), s.history[orderID]...)
	total := len(all)
	return paginate(all, page, pageSize), total, nil
}

// --- payment.Store ---

func (s *Store) CreatePayment(ctx context.Context, p payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[p.OrderID]; !ok {
		return order.ErrNotFound
	}
	cp := p
	s.payments[p.ID] = &cp
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrPaymentNotFound
	}
	return *p, nil
}

func (s *Store) SetPaymentOutcome(ctx context.Context, id string, status payment.Status, transactionID *string, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if p.Status != payment.StatusInitiated {
		return &payment.InvalidStatusError{PaymentID: id, From: string(p.Status), To: string(status)}
	}
	if status != payment.StatusSuccess && status != payment.StatusFailed {
		return &payment.InvalidStatusError{PaymentID: id, From: string(p.Status), To: string(status)}
	}
	p.Status = status
	p.TransactionID = transactionID
	p.PaidAt = paidAt
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateRefund(ctx context.Context, r payment.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[r.PaymentID]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	remaining := p.Amount.Sub(s.refundedLocked(r.PaymentID))
	if r.Amount.GreaterThan(remaining) {
		return &payment.RefundExceedsPaymentError{
			PaymentID: r.PaymentID,
			Requested: r.Amount,
			Remaining: remaining,
		}
	}
	cp := r
	s.refunds[r.ID] = &cp
	return nil
}

func (s *Store) refundedLocked(paymentID string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range s.refunds {
		if r.PaymentID == paymentID && r.Status == payment.RefundSuccess {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

func (s *Store) GetRefund(ctx context.Context, id string) (payment.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return payment.Refund{}, payment.ErrRefundNotFound
	}
	return *r, nil
}

func (s *Store) SetRefundStatus(ctx context.Context, id string, status payment.RefundStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return payment.ErrRefundNotFound
	}
	valid := (r.Status == payment.RefundInitiated && status == payment.RefundProcessing) ||
		(r.Status == payment.RefundProcessing &&
			(status == payment.RefundSuccess || status == payment.RefundFailed))
	if !valid {
		return &payment.InvalidStatusError{PaymentID: r.PaymentID, From: string(r.Status), To: string(status)}
	}
	if status == payment.RefundSuccess {
		p := s.payments[r.PaymentID]
		remaining := p.Amount.Sub(s.refundedLocked(r.PaymentID))
		if r.Amount.GreaterThan(remaining) {
			return &payment.RefundExceedsPaymentError{
				PaymentID: r.PaymentID,
				Requested: r.Amount,
				Remaining: remaining,
			}
		}
		r.ProcessedAt = &at
		if r.Amount.Equal(remaining) {
			p.Status = payment.StatusRefunded
			p.UpdatedAt = at
		}
	}
	r.Status = status
	r.UpdatedAt = at
	return nil
}

func (s *Store) ListPayments(ctx context.Context, page, pageSize int) ([]payment.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		all = append(all, *p)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page, pageSize), total, nil
}

func (s *Store) ListRefunds(ctx context.Context, page, pageSize int) ([]payment.Refund, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]payment.Refund, 0, len(s.refunds))
	for _, r := range s.refunds {
		all = append(all, *r)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page, pageSize), total, nil
}
