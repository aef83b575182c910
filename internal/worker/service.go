// Package worker runs the background side of fulfillment: the payment event
// consumer that moves paid orders into processing, the reservation sweeper
// and the ledger reconciliation job.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/redisx"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

type Service struct {
	Orders      *order.Service
	Ledger      *ledger.Ledger
	Resv        *reservation.Manager
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandlePaymentSucceeded consumes payment.succeeded and drives the order from
// pending to processing. Deduped by event id; an order that already moved on
// is left alone.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, m kafkago.Message) error {
	var env order.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != order.EventPaymentSucceeded {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	var p order.PaymentSucceededPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}

	_, err := s.Orders.Transition(ctx, p.OrderID, order.StatusProcessing,
		order.Actor{Type: order.ActorSystem}, nil)
	var invalid *order.InvalidTransitionError
	if errors.As(err, &invalid) {
		// Replayed or late event; the order is past pending already.
		s.Log.Info("payment event ignored, order already moved on",
			zap.String("order_id", p.OrderID),
			zap.String("status", string(invalid.From)))
		return nil
	}
	if errors.Is(err, order.ErrNotFound) {
		s.Log.Warn("payment event for unknown order", zap.String("order_id", p.OrderID))
		return nil
	}
	return err
}

// RunSweeper expires due reservations on a fixed interval. The redis lock
// keeps one active sweeper across replicas; losing the lock just skips the
// tick.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	lock := redisx.NewJobLock(s.Redis, "reservation-sweep", interval*2)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = lock.Release(context.WithoutCancel(ctx))
			return
		case <-t.C:
		}

		ok, err := lock.Renew(ctx)
		if err == nil && !ok {
			ok, err = lock.Acquire(ctx)
		}
		if err != nil {
			s.Log.Warn("sweep lock error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		n, err := s.Resv.Sweep(ctx)
		if err != nil {
			s.Log.Error("reservation sweep failed", zap.Error(err))
			continue
		}
		if n > 0 {
			s.Log.Info("reservations expired", zap.Int("count", n))
		}
	}
}

// RunReconciler periodically resums the movement log per variant against the
// cached balances.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	lock := redisx.NewJobLock(s.Redis, "ledger-reconcile", interval*2)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = lock.Release(context.WithoutCancel(ctx))
			return
		case <-t.C:
		}

		ok, err := lock.Renew(ctx)
		if err == nil && !ok {
			ok, err = lock.Acquire(ctx)
		}
		if err != nil {
			s.Log.Warn("reconcile lock error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		diverged, err := s.Ledger.ReconcileAll(ctx)
		if err != nil {
			s.Log.Error("ledger reconcile failed", zap.Error(err))
			continue
		}
		for _, d := range diverged {
			s.Log.Error("ledger divergence",
				zap.String("variant_id", d.VariantID),
				zap.Int("cached", d.Cached),
				zap.Int("actual", d.Actual))
		}
	}
}
