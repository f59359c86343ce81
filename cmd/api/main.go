package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dukahub/paybill-core/internal/cart"
	"github.com/dukahub/paybill-core/internal/checkout"
	"github.com/dukahub/paybill-core/internal/config"
	"github.com/dukahub/paybill-core/internal/daraja"
	"github.com/dukahub/paybill-core/internal/httpx"
	kafkax "github.com/dukahub/paybill-core/internal/kafka"
	"github.com/dukahub/paybill-core/internal/metrics"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
	"github.com/dukahub/paybill-core/internal/postgres"
	"github.com/dukahub/paybill-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for the notification sink
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifications, 1024, log)
	prod.Start(ctx)

	gateway := daraja.New(daraja.Config{
		Environment:    cfg.MpesaEnvironment,
		BaseURL:        cfg.MpesaBaseURL,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
		TokenTimeout:   cfg.MpesaTokenTimeout,
		PushTimeout:    cfg.MpesaPushTimeout,
	})

	svc := &checkout.Service{
		Carts:    &cart.Repo{DB: db},
		Orders:   &orders.Repo{DB: db},
		Payments: &payments.Repo{DB: db},
		Gateway:  gateway,
		Producer: prod,
		Redis:    rdb,
		Log:      log,
		Metrics:  metrics.New("checkout"),
		Policy: checkout.Policy{
			ServiceName:       cfg.ServiceName,
			Shortcode:         cfg.MpesaShortcode,
			ShippingCents:     cfg.ShippingCents,
			TaxRateBps:        cfg.TaxRateBps,
			StrictAmountMatch: cfg.StrictAmountMatch,
			PendingExpiry:     cfg.PendingPaymentExpiry,
		},
	}

	router := httpx.NewRouter()
	h := &httpx.CheckoutHandler{Svc: svc, Orders: &orders.Repo{DB: db}, Carts: &cart.Repo{DB: db}, Log: log}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		svc.RunSweeper(gctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			log.Info("shutting down")
		case <-gctx.Done():
		}
		shctx, shcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shcancel()
		_ = srv.Shutdown(shctx)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", "err", err)
	}
	prod.WaitClosed() // producer flushes queued events on ctx cancel
}
