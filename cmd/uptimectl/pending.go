package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimedispatch/internal/bootstrap"
)

var pendingGroup string

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show how many entries a region's consumer group holds unacknowledged",
	RunE: func(cmd *cobra.Command, args []string) error {
		group := pendingGroup
		if group == "" {
			group = cfg.RegionID
		}
		if group == "" {
			return fmt.Errorf("--group or REGION_ID is required")
		}

		b, err := bootstrap.OpenBroker(cfg, logger, "uptimectl")
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Pending(cmd.Context(), group)
		if err != nil {
			return fmt.Errorf("pending for %s: %w", group, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"group": group, "pending": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pending\n", group, n)
		return nil
	},
}

func init() {
	pendingCmd.Flags().StringVar(&pendingGroup, "group", "", "consumer group (region); defaults to REGION_ID")
}
