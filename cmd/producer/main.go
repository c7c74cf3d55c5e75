package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimedispatch/internal/bootstrap"
	"github.com/hamed0406/uptimedispatch/internal/config"
	"github.com/hamed0406/uptimedispatch/internal/httpapi"
	"github.com/hamed0406/uptimedispatch/internal/logging"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
	"github.com/hamed0406/uptimedispatch/internal/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateProducer(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger("producer", cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("producer_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bootstrap.OpenBroker(cfg, logger, "producer")
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = b.Close()
		return err
	}
	m := metrics.New()

	p := producer.NewProducer(logger, store, b, cfg.ProducerInterval, cfg.ProducerSchedule)
	p.Metrics = m

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	if cfg.OpsAddr != "" {
		g.Go(func() error { return httpapi.Serve(gctx, logger, cfg.OpsAddr, httpapi.OpsRouter(m)) })
	}
	err = g.Wait()

	if cerr := bootstrap.CloseAll(store, b); cerr != nil {
		logger.Warn("producer_close_error", zap.Error(cerr))
	}
	return err
}
