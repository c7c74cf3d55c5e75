package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimedispatch/internal/config"
)

type level string

const (
	levelOK   level = "ok"
	levelWarn level = "warn"
	levelFail level = "fail"
)

type finding struct {
	Level   level  `json:"level"`
	Message string `json:"message"`
}

var preflightRole string

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Validate environment configuration for a role before deploying",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := preflight(cfg, preflightRole)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, fs); err != nil {
				return err
			}
		} else {
			for _, f := range fs {
				fmt.Fprintln(out, marker(f.Level), f.Message)
			}
		}
		for _, f := range fs {
			if f.Level == levelFail {
				return fmt.Errorf("preflight failed for role %s", preflightRole)
			}
		}
		if !jsonOutput {
			fmt.Fprintln(out, marker(levelOK), "preflight passed")
		}
		return nil
	},
}

func init() {
	preflightCmd.Flags().StringVar(&preflightRole, "role", "worker", "role to validate: worker, producer or api")
}

func marker(l level) string {
	switch l {
	case levelFail:
		return "✖"
	case levelWarn:
		return "⚠"
	default:
		return "✔"
	}
}

func preflight(c *config.Config, role string) []finding {
	var fs []finding
	ok := func(msg string) { fs = append(fs, finding{levelOK, msg}) }
	warn := func(msg string) { fs = append(fs, finding{levelWarn, msg}) }
	fail := func(msg string) { fs = append(fs, finding{levelFail, msg}) }

	switch role {
	case "worker":
		if err := c.ValidateWorker(); err != nil {
			fail(err.Error())
		} else {
			ok(fmt.Sprintf("REGION_ID=%s WORKER_ID=%s", c.RegionID, c.WorkerID))
		}
		if c.ClaimTimeout <= c.ProbeTimeout {
			warn("CLAIM_TIMEOUT should exceed PROBE_TIMEOUT or healthy batches will be redelivered")
		}
	case "producer":
		if err := c.ValidateProducer(); err != nil {
			fail(err.Error())
		} else if c.ProducerSchedule != "" {
			ok("PRODUCER_SCHEDULE=" + c.ProducerSchedule)
		} else {
			ok("PRODUCER_INTERVAL=" + c.ProducerInterval.String())
		}
	case "api":
		if c.APIAddr == "" {
			fail("API_ADDR is empty")
		} else {
			ok("API_ADDR=" + c.APIAddr)
		}
		switch origins := c.AllowedOriginsList(); {
		case len(origins) == 0:
			warn("ALLOWED_ORIGINS empty; browsers will be blocked by CORS for cross-origin requests.")
		case strings.Contains(c.AllowedOrigins, "*"):
			warn("ALLOWED_ORIGINS allows every origin")
		default:
			ok("ALLOWED_ORIGINS=" + strings.Join(origins, ","))
		}
	default:
		fail(fmt.Sprintf("unknown role %q (must be worker, producer or api)", role))
		return fs
	}

	if role != "api" {
		if c.UsesMemoryBroker() {
			warn("BROKER_URL=memory; jobs are not shared between processes")
		} else {
			ok("BROKER_URL=" + c.BrokerURL)
		}
	}

	switch {
	case c.DatabaseURL != "":
		ok("DATABASE_URL present")
	case c.SQLitePath != "":
		ok("SQLITE_PATH=" + c.SQLitePath)
	default:
		warn("DATABASE_URL and SQLITE_PATH empty; ticks and targets stay in memory.")
	}

	if len(c.KafkaBrokersList()) > 0 {
		ok("tick feed enabled on topic " + c.TickTopic)
	}
	return fs
}
