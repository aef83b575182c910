// Package memstore is an in-memory implementation of every store interface,
// sharing one mutex so cross-entity operations (convert, cancel restock) stay
// atomic. It backs unit tests and dev mode; production uses pgstore.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

type variantRow struct {
	stock             int
	lowStockThreshold int
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ reservation.Store = (*Store)(nil)
	_ coupon.Store      = (*Store)(nil)
	_ order.Store       = (*Store)(nil)
	_ payment.Store     = (*Store)(nil)
)

type Store struct {
	mu sync.Mutex

	variants  map[string]*variantRow
	movements []ledger.Movement

	reservations map[string]*reservation.Reservation

	coupons       map[string]*coupon.Coupon
	couponsByCode map[string]string
	orderCoupons  []coupon.OrderCoupon

	orders      map[string]*order.Order
	items       map[string][]order.OrderItem
	history     map[string][]order.StatusHistory
	notes       map[string][]order.Note
	ordersByRef map[string]string

	payments map[string]*payment.Payment
	refunds  map[string]*payment.Refund
}

func New() *Store {
	return &Store{
		variants:      map[string]*variantRow{},
		reservations:  map[string]*reservation.Reservation{},
		coupons:       map[string]*coupon.Coupon{},
		couponsByCode: map[string]string{},
		orders:        map[string]*order.Order{},
		items:         map[string][]order.OrderItem{},
		history:       map[string][]order.StatusHistory{},
		notes:         map[string][]order.Note{},
		ordersByRef:   map[string]string{},
		payments:      map[string]*payment.Payment{},
		refunds:       map[string]*payment.Refund{},
	}
}

func (s *Store) UpsertVariant(ctx context.Context, variantID string, lowStockThreshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.variants[variantID]; ok {
		v.lowStockThreshold = lowStockThreshold
		return nil
	}
	s.variants[variantID] = &variantRow{lowStockThreshold: lowStockThreshold}
	return nil
}

// SeedVariant registers a variant with an opening admin_adjustment movement
// so stock == sum of movements from the start.
func (s *Store) SeedVariant(id string, stock, lowStockThreshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[id] = &variantRow{stock: stock, lowStockThreshold: lowStockThreshold}
	if stock != 0 {
		ref := ledger.RefManual
		s.movements = append(s.movements, ledger.Movement{
			ID:        fmt.Sprintf("seed-%s", id),
			VariantID: id,
			Delta:     stock,
			Reason:    ledger.ReasonAdminAdjustment,
			RefType:   &ref,
			CreatedAt: time.Now().UTC(),
		})
	}
}

// --- ledger.Store ---

func (s *Store) AppendMovement(ctx context.Context, m ledger.Movement, allowNegative bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(m, allowNegative)
}

func (s *Store) appendLocked(m ledger.Movement, allowNegative bool) (int, error) {
	v, ok := s.variants[m.VariantID]
	if !ok {
		return 0, ledger.ErrVariantNotFound
	}
	next := v.stock + m.Delta
	if next < 0 && !allowNegative {
		return 0, &ledger.InsufficientStockError{
			VariantID: m.VariantID,
			Requested: -m.Delta,
			Available: v.stock,
		}
	}
	v.stock = next
	s.movements = append(s.movements, m)
	return next, nil
}

func (s *Store) VariantBalance(ctx context.Context, variantID string) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return ledger.Balance{}, ledger.ErrVariantNotFound
	}
	return ledger.Balance{
		VariantID:         variantID,
		Stock:             v.stock,
		LowStockThreshold: v.lowStockThreshold,
		LowStock:          v.stock <= v.lowStockThreshold,
	}, nil
}

func (s *Store) SumMovements(ctx context.Context, variantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.variants[variantID]; !ok {
		return 0, ledger.ErrVariantNotFound
	}
	sum := 0
	for _, m := range s.movements {
		if m.VariantID == variantID {
			sum += m.Delta
		}
	}
	return sum, nil
}

func (s *Store) VariantIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.variants))
	for id := range s.variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CorruptBalance shifts the cached counter without a movement. Test hook for
// the reconciliation path.
func (s *Store) CorruptBalance(variantID string, by int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.variants[variantID]; ok {
		v.stock += by
	}
}

func (s *Store) ListMovements(ctx context.Context, f ledger.ListFilter) ([]ledger.Movement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []ledger.Movement
	for _, m := range s.movements {
		if f.VariantID == "" || m.VariantID == f.VariantID {
			all = append(all, m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, f.Page, f.PageSize), total, nil
}

// --- reservation.Store ---

func (s *Store) CreateReservation(ctx context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[r.VariantID]
	if !ok {
		return ledger.ErrVariantNotFound
	}
	available := v.stock - s.activeQuantityLocked(r.VariantID)
	if available < r.Quantity {
		return &reservation.OutOfStockError{
			VariantID: r.VariantID,
			Requested: r.Quantity,
			Available: available,
		}
	}
	cp := r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *Store) activeQuantityLocked(variantID string) int {
	n := 0
	for _, r := range s.reservations {
		if r.VariantID == variantID && r.Status == reservation.StatusActive {
			n += r.Quantity
		}
	}
	return n
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, &reservation.NotFoundError{ReservationID: id}
	}
	return *r, nil
}

func (s *Store) ConvertReservation(ctx context.Context, id, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return &reservation.NotFoundError{ReservationID: id}
	}
	switch r.Status {
	case reservation.StatusActive:
	case reservation.StatusExpired:
		return &reservation.ExpiredError{ReservationID: id}
	default:
		return fmt.Errorf("reservation %s is %s", id, r.Status)
	}
	ref := ledger.RefOrderItem
	if _, err := s.appendLocked(ledger.Movement{
		ID:        fmt.Sprintf("mv-convert-%s", id),
		VariantID: r.VariantID,
		Delta:     -r.Quantity,
		Reason:    ledger.ReasonOrder,
		RefType:   &ref,
		RefID:     &orderID,
		CreatedAt: time.Now().UTC(),
	}, false); err != nil {
		return err
	}
	r.Status = reservation.StatusConverted
	r.OrderID = &orderID
	return nil
}

func (s *Store) UnconvertReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return &reservation.NotFoundError{ReservationID: id}
	}
	if r.Status != reservation.StatusConverted {
		return fmt.Errorf("reservation %s is %s, not converted", id, r.Status)
	}
	ref := ledger.RefOrderItem
	if _, err := s.appendLocked(ledger.Movement{
		ID:        fmt.Sprintf("mv-unconvert-%s", id),
		VariantID: r.VariantID,
		Delta:     r.Quantity,
		Reason:    ledger.ReasonCancel,
		RefType:   &ref,
		RefID:     r.OrderID,
		CreatedAt: time.Now().UTC(),
	}, false); err != nil {
		return err
	}
	r.Status = reservation.StatusActive
	r.OrderID = nil
	return nil
}

func (s *Store) ReleaseReservation(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return &reservation.NotFoundError{ReservationID: id}
	}
	if r.Status != reservation.StatusActive && r.Status != reservation.StatusExpired {
		return fmt.Errorf("reservation %s is %s, cannot release", id, r.Status)
	}
	r.Status = reservation.StatusReleased
	r.ReleasedAt = &at
	return nil
}

func (s *Store) ExpireDueReservations(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reservations {
		if r.Status == reservation.StatusActive && now.After(r.ExpiresAt) {
			r.Status = reservation.StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *Store) AvailableStock(ctx context.Context, variantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return 0, ledger.ErrVariantNotFound
	}
	return v.stock - s.activeQuantityLocked(variantID), nil
}

func (s *Store) ListReservations(ctx context.Context, f reservation.ListFilter) ([]reservation.Reservation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []reservation.Reservation
	for _, r := range s.reservations {
		if f.VariantID == "" || r.VariantID == f.VariantID {
			all = append(all, *r)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ReservedAt.After(all[j].ReservedAt) })
	total := len(all)
	return paginate(all, f.Page, f.PageSize), total, nil
}

func paginate[T any](all []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
