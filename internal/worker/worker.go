// Package worker drains one region's consumer group: read a batch, probe every
// target concurrently, persist one tick per probe, then bulk-ack what was
// persisted.
package worker

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/broker"
	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
	"github.com/hamed0406/uptimedispatch/internal/probe"
	"github.com/hamed0406/uptimedispatch/internal/repo"
	"github.com/hamed0406/uptimedispatch/internal/tickfeed"
)

const (
	retryInitial = 250 * time.Millisecond
	retryMax     = 15 * time.Second

	maxLoggedPayload = 512
)

type Config struct {
	Region string
	ID     string

	BatchSize       int
	Block           time.Duration
	IdleWait        time.Duration
	ProbeTimeout    time.Duration
	PersistAttempts int
	PersistBackoff  time.Duration
}

type Worker struct {
	Logger  *zap.Logger
	Broker  broker.Broker
	Ticks   repo.TickStore
	Checker probe.Checker
	// Feed and Metrics are optional.
	Feed    tickfeed.Publisher
	Metrics *metrics.Metrics

	cfg Config
	now func() time.Time
}

// BatchResult summarizes one pass over a delivered batch.
type BatchResult struct {
	Read        int
	Acked       int
	Quarantined int
	// Failed entries could not be persisted and stay pending.
	Failed int
	// Skipped entries were never probed because shutdown began first.
	Skipped int
}

func New(
	logger *zap.Logger,
	b broker.Broker,
	ticks repo.TickStore,
	checker probe.Checker,
	cfg Config,
) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = 250 * time.Millisecond
	}
	if cfg.PersistAttempts < 1 {
		cfg.PersistAttempts = 1
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = 200 * time.Millisecond
	}
	return &Worker{
		Logger:  logger.With(zap.String("region", cfg.Region), zap.String("worker", cfg.ID)),
		Broker:  b,
		Ticks:   ticks,
		Checker: checker,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled. Broker failures are retried with
// exponential backoff; an empty batch sleeps IdleWait and polls again.
// It returns nil on cancellation and an error only if the broker was closed
// underneath it.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("worker_started",
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("block", w.cfg.Block),
		zap.Duration("probe_timeout", w.cfg.ProbeTimeout),
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitial
	bo.MaxInterval = retryMax

	for {
		if ctx.Err() != nil {
			w.Logger.Info("worker_stopped")
			return nil
		}

		res, err := w.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			w.Logger.Info("worker_stopped")
			return nil
		case errors.Is(err, broker.ErrClosed):
			w.Logger.Warn("worker_broker_closed")
			return err
		case err != nil:
			wait := bo.NextBackOff()
			w.Logger.Warn("worker_broker_error",
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			if !sleep(ctx, wait) {
				w.Logger.Info("worker_stopped")
				return nil
			}
			continue
		}
		bo.Reset()

		if res.Read == 0 && !sleep(ctx, w.cfg.IdleWait) {
			w.Logger.Info("worker_stopped")
			return nil
		}
	}
}

// Poll reads at most one batch for the region and processes it.
func (w *Worker) Poll(ctx context.Context) (BatchResult, error) {
	msgs, err := w.Broker.ReadGroup(ctx, w.cfg.Region, w.cfg.ID, w.cfg.BatchSize, w.cfg.Block)
	if err != nil {
		if ctx.Err() == nil {
			w.Metrics.BrokerError("read_group")
		}
		return BatchResult{}, err
	}
	if len(msgs) == 0 {
		return BatchResult{}, nil
	}
	return w.ProcessBatch(ctx, msgs)
}

type entry struct {
	msg  broker.Message
	job  domain.Job
	tick *domain.Tick
}

// ProcessBatch probes, persists and acks one delivered batch. Cancelling ctx
// stops probes that have not started yet; probes already running finish and
// their ticks are still persisted and acked. The returned error is the bulk
// ack failure, if any; persistence failures are logged and counted in the
// result because their entries are simply left for redelivery.
func (w *Worker) ProcessBatch(ctx context.Context, msgs []broker.Message) (BatchResult, error) {
	res := BatchResult{Read: len(msgs)}
	drain := context.WithoutCancel(ctx)

	var (
		jobs   []*entry
		ackIDs []string
	)
	for _, m := range msgs {
		j, err := domain.DecodeJob(m.Payload)
		if err != nil {
			w.Logger.Error("worker_malformed_entry",
				zap.String("entry_id", m.ID),
				zap.ByteString("payload", truncate(m.Payload, maxLoggedPayload)),
				zap.Error(err),
			)
			w.Metrics.Quarantined(w.cfg.Region)
			ackIDs = append(ackIDs, m.ID)
			res.Quarantined++
			continue
		}
		if m.Deliveries > 1 {
			w.Logger.Info("worker_redelivered",
				zap.String("entry_id", m.ID),
				zap.String("target_id", string(j.TargetID)),
				zap.Int("deliveries", m.Deliveries),
			)
		}
		jobs = append(jobs, &entry{msg: m, job: j})
	}

	// PROBE_ALL
	var wg sync.WaitGroup
	for _, j := range jobs {
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.tick = w.probe(drain, j.job)
		}()
	}
	wg.Wait()

	// PERSIST_ALL
	var (
		mu         sync.Mutex
		persistErr error
	)
	for _, j := range jobs {
		if j.tick == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.persist(drain, j.tick); err != nil {
				w.Metrics.PersistFailed(w.cfg.Region)
				w.Logger.Error("worker_persist_failed",
					zap.String("entry_id", j.msg.ID),
					zap.String("target_id", string(j.job.TargetID)),
					zap.Int("attempts", w.cfg.PersistAttempts),
					zap.Error(err),
				)
				mu.Lock()
				persistErr = multierr.Append(persistErr, err)
				res.Failed++
				mu.Unlock()
				return
			}
			w.publish(drain, j.tick)
			mu.Lock()
			ackIDs = append(ackIDs, j.msg.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if persistErr != nil {
		w.Logger.Warn("worker_batch_partially_persisted",
			zap.Int("failed", res.Failed),
			zap.Int("errors", len(multierr.Errors(persistErr))),
		)
	}

	// ACK_BATCH
	if len(ackIDs) == 0 {
		return res, nil
	}
	if err := w.Broker.Ack(drain, w.cfg.Region, ackIDs...); err != nil {
		// a partial ack still removed some entries from the pending list
		if res.Acked = broker.AckedCount(err); res.Acked > 0 {
			w.Metrics.Acked(w.cfg.Region, res.Acked)
		}
		w.Metrics.BrokerError("ack")
		w.Logger.Warn("worker_ack_error",
			zap.Int("entries", len(ackIDs)),
			zap.Int("acked", res.Acked),
			zap.Error(err),
		)
		return res, err
	}
	res.Acked = len(ackIDs)
	w.Metrics.Acked(w.cfg.Region, res.Acked)
	w.Logger.Debug("worker_batch_acked",
		zap.Int("read", res.Read),
		zap.Int("acked", res.Acked),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (w *Worker) probe(ctx context.Context, j domain.Job) *domain.Tick {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()

	url := probe.NormalizeURL(j.URL)
	out := w.Checker.Check(cctx, url)

	status := domain.StatusDown
	if out.Success {
		status = domain.StatusUp
	}
	w.Metrics.ObserveProbe(w.cfg.Region, string(status), out.LatencyMS/1000)
	w.Logger.Debug("worker_probed",
		zap.String("target_id", string(j.TargetID)),
		zap.String("url", url),
		zap.String("status", string(status)),
		zap.Int("http_status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
	)
	return &domain.Tick{
		TargetID:       j.TargetID,
		RegionID:       w.cfg.Region,
		Status:         status,
		ResponseTimeMS: int64(math.Round(out.LatencyMS)),
		ObservedAt:     w.now().UTC(),
		Reason:         out.Message,
	}
}

func (w *Worker) persist(ctx context.Context, t *domain.Tick) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.PersistBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.Ticks.Append(ctx, t)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(w.cfg.PersistAttempts)),
	)
	return err
}

func (w *Worker) publish(ctx context.Context, t *domain.Tick) {
	if w.Feed == nil {
		return
	}
	if err := w.Feed.Publish(ctx, *t); err != nil {
		w.Logger.Debug("worker_feed_error",
			zap.String("target_id", string(t.TargetID)),
			zap.Error(err),
		)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
