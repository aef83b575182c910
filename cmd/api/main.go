package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/config"
	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/httpx"
	kafkax "github.com/cnfstore/commerce-core/internal/kafka"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/pgstore"
	"github.com/cnfstore/commerce-core/internal/postgres"
	"github.com/cnfstore/commerce-core/internal/redisx"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	store := pgstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	prodEvents := kafkax.NewProducer(cfg.KafkaBrokers, order.TopicOrderEvents, 1024, log)
	prodEvents.Start(ctx)
	prodPayments := kafkax.NewProducer(cfg.KafkaBrokers, order.TopicPaymentSucceeded, 1024, log)
	prodPayments.Start(ctx)

	// Domain services
	led := ledger.New(store, log)
	resv := reservation.NewManager(store, cfg.ReservationTTL, log)
	coupons := coupon.NewEngine(store, log)
	pricing := order.Pricing{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingCost:          cfg.ShippingCost,
		TaxRate:               cfg.TaxRate,
	}
	orders := order.NewService(store, resv, coupons, pricing, prodEvents, cfg.ServiceName, log)
	payments := payment.NewCoordinator(store, prodPayments, cfg.ServiceName, log)

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.InventoryHandler{Ledger: led, Resv: resv}).Register(router)
	(&httpx.ReservationsHandler{Resv: resv}).Register(router)
	(&httpx.OrdersHandler{Service: orders, Redis: rdb}).Register(router)
	(&httpx.CouponsHandler{Engine: coupons}).Register(router)
	(&httpx.PaymentsHandler{Coordinator: payments}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prodEvents.Close()
	prodPayments.Close()
	cancel()
	prodEvents.WaitClosed()
	prodPayments.WaitClosed()
}

func newLogger(env string) *zap.Logger {
	if env == "development" {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}
