package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/bootstrap"
	"github.com/hamed0406/uptimedispatch/internal/config"
	"github.com/hamed0406/uptimedispatch/internal/httpapi"
	"github.com/hamed0406/uptimedispatch/internal/logging"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger("api", cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("api_store", zap.Error(err))
	}
	defer store.Close()

	api := httpapi.NewServer(logger, store, store, metrics.New(), cfg.StatusStaleAfter)
	h := api.Router(cfg.AllowedOriginsList(), cfg.PublicRPM, cfg.PublicBurst)
	if err := httpapi.Serve(ctx, logger, cfg.APIAddr, h); err != nil {
		logger.Error("api_exit", zap.Error(err))
		os.Exit(1)
	}
}
