// Package config loads process configuration from the environment (and an
// optional .env file) using Viper. Every role shares one Config; each role
// validates the fields it needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingRegion = errors.New("config: REGION_ID must be set")
	ErrMissingWorker = errors.New("config: WORKER_ID must be set")
)

type Config struct {
	// RegionID names the consumer group; one group per monitoring region.
	RegionID string `mapstructure:"REGION_ID"`
	// WorkerID names this consumer inside the region's group.
	WorkerID string `mapstructure:"WORKER_ID"`

	// BrokerURL is a nats:// URL, or "memory" for the in-process broker.
	BrokerURL     string        `mapstructure:"BROKER_URL"`
	StreamName    string        `mapstructure:"STREAM_NAME"`
	StreamSubject string        `mapstructure:"STREAM_SUBJECT"`
	StreamMaxMsgs int64         `mapstructure:"STREAM_MAX_MSGS"`
	ClaimTimeout  time.Duration `mapstructure:"CLAIM_TIMEOUT"`

	ProbeTimeout    time.Duration `mapstructure:"PROBE_TIMEOUT"`
	BatchSize       int           `mapstructure:"BATCH_SIZE"`
	BlockTimeout    time.Duration `mapstructure:"BLOCK_TIMEOUT"`
	IdleWait        time.Duration `mapstructure:"IDLE_WAIT"`
	PersistAttempts int           `mapstructure:"PERSIST_ATTEMPTS"`
	PersistBackoff  time.Duration `mapstructure:"PERSIST_BACKOFF"`

	ProducerInterval time.Duration `mapstructure:"PRODUCER_INTERVAL"`
	// ProducerSchedule is an optional cron expression that overrides the interval.
	ProducerSchedule string `mapstructure:"PRODUCER_SCHEDULE"`

	// DatabaseURL selects Postgres; otherwise SQLitePath; otherwise in-memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	LogDir   string `mapstructure:"LOG_DIR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	OpsAddr          string        `mapstructure:"OPS_ADDR"`
	APIAddr          string        `mapstructure:"API_ADDR"`
	AllowedOrigins   string        `mapstructure:"ALLOWED_ORIGINS"`
	PublicRPM        int           `mapstructure:"PUBLIC_RPM"`
	PublicBurst      int           `mapstructure:"PUBLIC_BURST"`
	StatusStaleAfter time.Duration `mapstructure:"STATUS_STALE_AFTER"`

	// KafkaBrokers, when set, mirrors persisted ticks onto TickTopic.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TickTopic    string `mapstructure:"TICK_KAFKA_TOPIC"`
}

var defaults = map[string]any{
	"REGION_ID":          "",
	"WORKER_ID":          "",
	"BROKER_URL":         "nats://127.0.0.1:4222",
	"STREAM_NAME":        "uptime-jobs",
	"STREAM_SUBJECT":     "uptime.jobs",
	"STREAM_MAX_MSGS":    0,
	"CLAIM_TIMEOUT":      "60s",
	"PROBE_TIMEOUT":      "10s",
	"BATCH_SIZE":         5,
	"BLOCK_TIMEOUT":      "5s",
	"IDLE_WAIT":          "250ms",
	"PERSIST_ATTEMPTS":   3,
	"PERSIST_BACKOFF":    "200ms",
	"PRODUCER_INTERVAL":  "3m",
	"PRODUCER_SCHEDULE":  "",
	"DATABASE_URL":       "",
	"SQLITE_PATH":        "",
	"LOG_DIR":            "",
	"LOG_LEVEL":          "info",
	"OPS_ADDR":           ":9102",
	"API_ADDR":           ":8080",
	"ALLOWED_ORIGINS":    "*",
	"PUBLIC_RPM":         600,
	"PUBLIC_BURST":       60,
	"STATUS_STALE_AFTER": "10m",
	"KAFKA_BROKERS":      "",
	"TICK_KAFKA_TOPIC":   "uptime-ticks",
}

// Load reads .env (if present), then builds Config from the environment via
// Viper. Env vars override .env. Role-specific checks live in the Validate
// methods so that, e.g., the producer does not require a worker id.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.RegionID = strings.TrimSpace(cfg.RegionID)
	cfg.WorkerID = strings.TrimSpace(cfg.WorkerID)

	if cfg.BatchSize < 1 {
		return nil, errors.New("config: BATCH_SIZE must be at least 1")
	}
	if cfg.PersistAttempts < 1 {
		cfg.PersistAttempts = 1
	}
	if cfg.ProbeTimeout <= 0 {
		return nil, errors.New("config: PROBE_TIMEOUT must be positive")
	}
	return &cfg, nil
}

// ValidateWorker fails fast on a missing or unusable region/worker identity.
func (c *Config) ValidateWorker() error {
	if c.RegionID == "" {
		return ErrMissingRegion
	}
	if c.WorkerID == "" {
		return ErrMissingWorker
	}
	for name, v := range map[string]string{"REGION_ID": c.RegionID, "WORKER_ID": c.WorkerID} {
		if strings.ContainsAny(v, " \t\r\n*>") {
			return fmt.Errorf("config: %s %q contains whitespace or wildcard characters", name, v)
		}
	}
	return c.ValidateBroker()
}

func (c *Config) ValidateProducer() error {
	if c.ProducerSchedule == "" && c.ProducerInterval < time.Second {
		return errors.New("config: PRODUCER_INTERVAL must be at least 1s")
	}
	return c.ValidateBroker()
}

func (c *Config) ValidateBroker() error {
	if c.BrokerURL == "" {
		return errors.New("config: BROKER_URL must be set")
	}
	if c.UsesMemoryBroker() {
		return nil
	}
	if c.StreamName == "" || c.StreamSubject == "" {
		return errors.New("config: STREAM_NAME and STREAM_SUBJECT must be set")
	}
	return nil
}

func (c *Config) UsesMemoryBroker() bool {
	return strings.EqualFold(c.BrokerURL, "memory")
}

// AllowedOriginsList returns CORS origins from the comma-separated config.
func (c *Config) AllowedOriginsList() []string {
	return splitList(c.AllowedOrigins)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated
// config. An empty list disables the tick feed.
func (c *Config) KafkaBrokersList() []string {
	return splitList(c.KafkaBrokers)
}

// isNotFound reports a missing .env. An explicit config file path surfaces as
// an fs error rather than viper's not-found type, so both are checked.
func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
