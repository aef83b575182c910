package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the reservation lifecycle on top of the ledger's balance view.
type Manager struct {
	store      Store
	log        *zap.Logger
	defaultTTL time.Duration
}

func NewManager(store Store, defaultTTL time.Duration, log *zap.Logger) *Manager {
	return &Manager{store: store, log: log, defaultTTL: defaultTTL}
}

// Create places a hold for quantity units of the variant. TTL <= 0 falls back
// to the configured default.
func (m *Manager) Create(ctx context.Context, variantID string, quantity int, cartID *string, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := time.Now().UTC()
	r := Reservation{
		ID:         uuid.NewString(),
		VariantID:  variantID,
		CartID:     cartID,
		Quantity:   quantity,
		Status:     StatusActive,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.store.CreateReservation(ctx, r); err != nil {
		return Reservation{}, err
	}
	m.log.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("variant_id", variantID),
		zap.Int("quantity", quantity),
		zap.Time("expires_at", r.ExpiresAt))
	return r, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Reservation, error) {
	return m.store.GetReservation(ctx, id)
}

// Convert turns the hold into a real stock debit for the given order.
func (m *Manager) Convert(ctx context.Context, id, orderID string) error {
	if err := m.store.ConvertReservation(ctx, id, orderID); err != nil {
		return err
	}
	m.log.Info("reservation converted",
		zap.String("reservation_id", id),
		zap.String("order_id", orderID))
	return nil
}

// Unconvert undoes a conversion during checkout compensation.
func (m *Manager) Unconvert(ctx context.Context, id string) error {
	if err := m.store.UnconvertReservation(ctx, id); err != nil {
		return err
	}
	m.log.Warn("reservation conversion undone", zap.String("reservation_id", id))
	return nil
}

func (m *Manager) Release(ctx context.Context, id string) error {
	return m.store.ReleaseReservation(ctx, id, time.Now().UTC())
}

// Sweep expires overdue holds. Callers are responsible for running this as a
// single active instance (see redisx.JobLock); sweeping an already-expired
// reservation is a no-op either way.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.ExpireDueReservations(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info("reservations expired", zap.Int("count", n))
	}
	return n, nil
}

func (m *Manager) Available(ctx context.Context, variantID string) (int, error) {
	return m.store.AvailableStock(ctx, variantID)
}

func (m *Manager) List(ctx context.Context, f ListFilter) ([]Reservation, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return m.store.ListReservations(ctx, f)
}
