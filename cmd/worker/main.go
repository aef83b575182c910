package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/config"
	"github.com/cnfstore/commerce-core/internal/coupon"
	kafkax "github.com/cnfstore/commerce-core/internal/kafka"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/pgstore"
	"github.com/cnfstore/commerce-core/internal/postgres"
	"github.com/cnfstore/commerce-core/internal/redisx"
	"github.com/cnfstore/commerce-core/internal/reservation"
	"github.com/cnfstore/commerce-core/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	store := pgstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prodEvents := kafkax.NewProducer(cfg.KafkaBrokers, order.TopicOrderEvents, 1024, log)
	prodEvents.Start(ctx)

	led := ledger.New(store, log)
	resv := reservation.NewManager(store, cfg.ReservationTTL, log)
	coupons := coupon.NewEngine(store, log)
	pricing := order.Pricing{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingCost:          cfg.ShippingCost,
		TaxRate:               cfg.TaxRate,
	}
	orders := order.NewService(store, resv, coupons, pricing, prodEvents, cfg.ServiceName+"-worker", log)

	svc := &worker.Service{
		Orders:      orders,
		Ledger:      led,
		Resv:        resv,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
		Log:         log,
	}

	go svc.RunSweeper(ctx, cfg.SweepInterval)
	go svc.RunReconciler(ctx, cfg.ReconcileInterval)

	group := getenv("FULFILLMENT_GROUP", "fulfillment-worker")
	workers := mustAtoi(os.Getenv("FULFILLMENT_WORKERS"), 8)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, order.TopicPaymentSucceeded, workers, log)

	go func() {
		log.Info("payment consumer started",
			zap.String("group", group),
			zap.String("topic", order.TopicPaymentSucceeded),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandlePaymentSucceeded); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prodEvents.Close()
	prodEvents.WaitClosed()
}

func newLogger(env string) *zap.Logger {
	if env == "development" {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
