// Package bootstrap turns a Config into the concrete broker, store and tick
// feed a process runs with. Every constructor fails fast so a misconfigured
// process never starts half way.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/broker"
	"github.com/hamed0406/uptimedispatch/internal/broker/jetstream"
	brokermem "github.com/hamed0406/uptimedispatch/internal/broker/memory"
	"github.com/hamed0406/uptimedispatch/internal/config"
	"github.com/hamed0406/uptimedispatch/internal/repo"
	repomem "github.com/hamed0406/uptimedispatch/internal/repo/memory"
	"github.com/hamed0406/uptimedispatch/internal/repo/postgres"
	"github.com/hamed0406/uptimedispatch/internal/repo/sqlite"
	"github.com/hamed0406/uptimedispatch/internal/tickfeed"
)

// OpenBroker connects to the configured broker. name identifies the
// connection to the server (e.g. "worker-eu-1").
func OpenBroker(cfg *config.Config, log *zap.Logger, name string) (broker.Broker, error) {
	if cfg.UsesMemoryBroker() {
		log.Warn("broker_in_memory", zap.String("note", "jobs are lost on exit and not shared between processes"))
		return brokermem.New(
			brokermem.WithClaimTimeout(cfg.ClaimTimeout),
			brokermem.WithMaxLen(int(cfg.StreamMaxMsgs)),
		), nil
	}

	b, err := jetstream.Open(cfg.BrokerURL, jetstream.Options{
		Stream:       cfg.StreamName,
		Subject:      cfg.StreamSubject,
		ClaimTimeout: cfg.ClaimTimeout,
		MaxMsgs:      cfg.StreamMaxMsgs,
		Name:         name,
	},
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("broker_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("broker_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open broker: %w", err)
	}
	log.Info("broker_connected",
		zap.String("url", cfg.BrokerURL),
		zap.String("stream", cfg.StreamName),
		zap.Duration("claim_timeout", cfg.ClaimTimeout),
	)
	return b, nil
}

// OpenStore picks Postgres when DATABASE_URL is set, then SQLite when
// SQLITE_PATH is set, and falls back to an in-memory store.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repo.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		s, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info("store_postgres")
		return s, nil
	case cfg.SQLitePath != "":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("store_sqlite", zap.String("path", cfg.SQLitePath))
		return s, nil
	default:
		log.Warn("store_in_memory")
		return repomem.New(), nil
	}
}

func OpenFeed(cfg *config.Config, log *zap.Logger) tickfeed.Publisher {
	brokers := cfg.KafkaBrokersList()
	p := tickfeed.New(brokers, cfg.TickTopic)
	if _, off := p.(tickfeed.Noop); !off {
		log.Info("tick_feed_kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.TickTopic))
	}
	return p
}

// CloseAll closes every non-nil closer and combines their errors.
func CloseAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}
