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

	"github.com/Rekabyte1/rekabytepc/internal/config"
	"github.com/Rekabyte1/rekabytepc/internal/httpx"
	kafkax "github.com/Rekabyte1/rekabytepc/internal/kafka"
	"github.com/Rekabyte1/rekabytepc/internal/metrics"
	"github.com/Rekabyte1/rekabytepc/internal/notify"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
	"github.com/Rekabyte1/rekabytepc/internal/postgres"
	"github.com/Rekabyte1/rekabytepc/internal/redisx"
	"github.com/Rekabyte1/rekabytepc/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB + schema
	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per notification topic
	pConfirm := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifyConfirmation, 1024, log)
	pConfirm.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifyStatus, 1024, log)
	pStatus.Start(ctx)

	repo := &orders.Repo{DB: db}
	gate := &notify.Gate{
		Store:           repo,
		ConfirmProducer: pConfirm,
		StatusProducer:  pStatus,
		Redis:           rdb,
		Service:         cfg.ServiceName,
		Log:             log,
	}
	sweeper := &sweep.Sweeper{
		Store:  &orders.SweepRepo{DB: db},
		Orders: repo,
		Notify: gate,
		Batch:  cfg.SweepBatch,
		Log:    log,
	}

	m := metrics.New("api")
	router := httpx.NewRouter(m)
	oh := &httpx.OrdersHandler{
		Store:             repo,
		Notify:            gate,
		Sweep:             sweeper,
		Redis:             rdb,
		Metrics:           m,
		Log:               log,
		SweepSecret:       cfg.SweepSecret,
		ShippingFlatCents: cfg.ShippingFlatCents,
	}
	oh.Register(router)

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
	pConfirm.Close()
	pStatus.Close()
	cancel()
	pConfirm.WaitClosed()
	pStatus.WaitClosed()
}
