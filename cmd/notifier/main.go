package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukahub/paybill-core/internal/config"
	kafkax "github.com/dukahub/paybill-core/internal/kafka"
	"github.com/dukahub/paybill-core/internal/notify"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName+"-notifier")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicNotifications, workers, log)

	go func() {
		log.Info("notifier consumer started",
			"group", group, "topic", orders.TopicNotifications, "workers", workers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down notifier")
	case <-ctx.Done():
	}
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
