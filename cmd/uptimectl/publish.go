package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimedispatch/internal/bootstrap"
	"github.com/hamed0406/uptimedispatch/internal/producer"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run a single producer cycle against the configured broker and store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := bootstrap.OpenBroker(cfg, logger, "uptimectl")
		if err != nil {
			return err
		}
		store, err := bootstrap.OpenStore(ctx, cfg, logger)
		if err != nil {
			_ = b.Close()
			return err
		}
		defer bootstrap.CloseAll(store, b)

		p := producer.NewProducer(logger, store, b, cfg.ProducerInterval, cfg.ProducerSchedule)
		n, err := p.RunOnce(ctx)
		if jsonOutput {
			if perr := printJSON(cmd.OutOrStdout(), map[string]int{"published": n}); perr != nil {
				return perr
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "published %d job(s)\n", n)
		}
		return err
	},
}
