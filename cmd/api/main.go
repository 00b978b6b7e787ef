package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logg := config.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logg.WithError(err).Fatal("db connect")
	}
	defer db.Close()
	if err := postgres.InitSchema(ctx, db); err != nil {
		logg.WithError(err).Fatal("db schema")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (semua topic lewat satu writer)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logg)
	prod.Start(ctx)

	// Engine & collaborators
	engine := &lifecycle.Service{
		Store:    &orders.Repo{DB: db},
		Ledger:   &orders.StockLedger{DB: db},
		Redis:    rdb,
		Producer: prod,
		Log:      logg,
		Service:  cfg.ServiceName,
	}
	authSvc := &auth.Service{DB: db, Redis: rdb, Log: logg}
	catalogRepo := &catalog.Repo{DB: db}

	router := httpx.NewRouter(logg, authSvc)
	(&httpx.AuthHandler{Auth: authSvc, Engine: engine, Log: logg}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalogRepo, Log: logg}).Register(router)
	(&httpx.OrdersHandler{Engine: engine, Log: logg}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logg.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.WithError(err).Fatal("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logg.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()          // stop producer loop (flush sisa pesan)
	prod.WaitClosed() // drain
}
