package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logg := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis: rdb,
		Log:   logg,
		Name:  "notifier",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.Topics, cfg.NotifierWorkers, logg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.WithField("group", cfg.NotifierGroup).Info("notifier consumer started")
		return cons.Start(gctx, svc.HandleEvent)
	})
	if err := g.Wait(); err != nil {
		logg.WithError(err).Error("consumer exit")
	}
	logg.Info("notifier stopped")
}
