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
	"github.com/hamed0406/uptimedispatch/internal/probe"
	"github.com/hamed0406/uptimedispatch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger("worker", cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bootstrap.OpenBroker(cfg, logger, "worker-"+cfg.RegionID+"-"+cfg.WorkerID)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = b.Close()
		return err
	}
	feed := bootstrap.OpenFeed(cfg, logger)
	m := metrics.New()

	w := worker.New(logger, b, store, probe.NewHTTPChecker(cfg.ProbeTimeout), worker.Config{
		Region:          cfg.RegionID,
		ID:              cfg.WorkerID,
		BatchSize:       cfg.BatchSize,
		Block:           cfg.BlockTimeout,
		IdleWait:        cfg.IdleWait,
		ProbeTimeout:    cfg.ProbeTimeout,
		PersistAttempts: cfg.PersistAttempts,
		PersistBackoff:  cfg.PersistBackoff,
	})
	w.Feed = feed
	w.Metrics = m

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if cfg.OpsAddr != "" {
		g.Go(func() error { return httpapi.Serve(gctx, logger, cfg.OpsAddr, httpapi.OpsRouter(m)) })
	}
	err = g.Wait()

	// broker last: in-flight acks have already completed once Run returned
	if cerr := bootstrap.CloseAll(feed, store, b); cerr != nil {
		logger.Warn("worker_close_error", zap.Error(cerr))
	}
	return err
}
