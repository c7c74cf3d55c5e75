package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	brokermem "github.com/hamed0406/uptimedispatch/internal/broker/memory"
	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/probe"
	"github.com/hamed0406/uptimedispatch/internal/producer"
	repomem "github.com/hamed0406/uptimedispatch/internal/repo/memory"
	"github.com/hamed0406/uptimedispatch/internal/worker"
)

type devOptions struct {
	targets  []string
	regions  []string
	workers  int
	interval time.Duration
	duration time.Duration
}

var devOpts devOptions

var devCmd = &cobra.Command{
	Use:     "dev",
	Short:   "Run producer and regional workers in one process on an in-memory broker",
	Example: `  uptimectl dev --target example.com --target https://go.dev --region eu --region us --duration 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(devOpts.targets) == 0 {
			return fmt.Errorf("at least one --target is required")
		}
		ctx := cmd.Context()
		if devOpts.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, devOpts.duration)
			defer cancel()
		}
		store, err := runDev(ctx, logger, probe.NewHTTPChecker(cfg.ProbeTimeout), devOpts)
		if err != nil {
			return err
		}
		ticks := store.Ticks()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ticks)
		}
		printTicks(cmd.OutOrStdout(), ticks)
		return nil
	},
}

func init() {
	f := devCmd.Flags()
	f.StringArrayVar(&devOpts.targets, "target", nil, "URL to monitor (repeatable)")
	f.StringArrayVar(&devOpts.regions, "region", []string{"local"}, "region to run a consumer group for (repeatable)")
	f.IntVar(&devOpts.workers, "workers", 1, "workers per region")
	f.DurationVar(&devOpts.interval, "interval", 30*time.Second, "producer interval")
	f.DurationVar(&devOpts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
}

// runDev wires the whole pipeline in memory and blocks until ctx is done.
func runDev(ctx context.Context, log *zap.Logger, chk probe.Checker, o devOptions) (*repomem.Store, error) {
	b := brokermem.New(brokermem.WithClaimTimeout(cfg.ClaimTimeout))
	defer b.Close()

	store := repomem.New()
	for _, u := range o.targets {
		if err := store.Add(ctx, &domain.Target{URL: u}); err != nil {
			return nil, err
		}
	}

	p := producer.NewProducer(log, store, b, o.interval, "")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	for _, region := range o.regions {
		for i := 1; i <= max(o.workers, 1); i++ {
			w := worker.New(log, b, store, chk, worker.Config{
				Region:          region,
				ID:              fmt.Sprintf("dev-%d", i),
				BatchSize:       cfg.BatchSize,
				Block:           cfg.BlockTimeout,
				IdleWait:        cfg.IdleWait,
				ProbeTimeout:    cfg.ProbeTimeout,
				PersistAttempts: cfg.PersistAttempts,
				PersistBackoff:  cfg.PersistBackoff,
			})
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	if err := g.Wait(); err != nil {
		return store, err
	}
	return store, nil
}

func printTicks(w io.Writer, ticks []domain.Tick) {
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].ObservedAt.Before(ticks[j].ObservedAt) })
	for _, t := range ticks {
		fmt.Fprintf(w, "%s  %-8s %-36s %-4s %5dms %s\n",
			t.ObservedAt.Format(time.RFC3339), t.RegionID, t.TargetID, t.Status, t.ResponseTimeMS, t.Reason)
	}
	fmt.Fprintf(w, "%d tick(s)\n", len(ticks))
}
