// Package producer keeps the job log populated: every cycle it lists all
// targets and appends one job entry per target. It does not de-duplicate
// against entries still in flight.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/broker"
	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
	"github.com/hamed0406/uptimedispatch/internal/repo"
)

type Producer struct {
	Logger  *zap.Logger
	Targets repo.TargetSource
	Broker  broker.Broker
	Metrics *metrics.Metrics

	Interval time.Duration
	// Schedule, when set, is a cron expression (or @every/@hourly descriptor)
	// used instead of Interval.
	Schedule string
}

func NewProducer(
	logger *zap.Logger,
	targets repo.TargetSource,
	b broker.Broker,
	interval time.Duration,
	schedule string,
) *Producer {
	return &Producer{
		Logger:   logger,
		Targets:  targets,
		Broker:   b,
		Interval: interval,
		Schedule: schedule,
	}
}

// Run does an immediate cycle, then one per schedule tick until ctx is
// cancelled. A cycle still running when the next one is due is skipped.
func (p *Producer) Run(ctx context.Context) error {
	sched, err := p.schedule()
	if err != nil {
		return err
	}

	cl := cronLogger{p.Logger.Sugar()}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { p.cycle(ctx) }))

	c := cron.New(cron.WithLogger(cl))
	c.Schedule(sched, job)

	// immediate pass
	job.Run()

	c.Start()
	p.Logger.Info("producer_started",
		zap.Duration("interval", p.Interval),
		zap.String("schedule", p.Schedule),
	)
	<-ctx.Done()

	// wait for a running cycle to notice cancellation
	<-c.Stop().Done()
	p.Logger.Info("producer_stopped")
	return nil
}

func (p *Producer) schedule() (cron.Schedule, error) {
	if p.Schedule != "" {
		s, err := cron.ParseStandard(p.Schedule)
		if err != nil {
			return nil, fmt.Errorf("producer: schedule %q: %w", p.Schedule, err)
		}
		return s, nil
	}
	if p.Interval < time.Second {
		return nil, errors.New("producer: interval must be at least 1s")
	}
	return cron.Every(p.Interval), nil
}

func (p *Producer) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := p.RunOnce(ctx)
	if err != nil {
		p.Logger.Warn("producer_cycle_failed",
			zap.Int("published", n),
			zap.Error(err),
		)
		return
	}
	p.Logger.Info("producer_cycle",
		zap.Int("published", n),
		zap.Duration("took", time.Since(start)),
	)
}

// RunOnce publishes one job per target and returns how many were appended.
// A list failure publishes nothing; an append failure stops the cycle, and
// entries already appended stay in the log.
func (p *Producer) RunOnce(ctx context.Context) (int, error) {
	ts, err := p.Targets.List(ctx)
	if err != nil {
		p.Metrics.CycleFailed()
		return 0, fmt.Errorf("list targets: %w", err)
	}

	n := 0
	for _, t := range ts {
		payload, err := domain.EncodeJob(domain.NewJob(t))
		if err != nil {
			p.Logger.Warn("producer_skip_target",
				zap.String("target_id", string(t.ID)),
				zap.Error(err),
			)
			continue
		}
		if _, err := p.Broker.Append(ctx, payload); err != nil {
			p.Metrics.Published(n)
			p.Metrics.BrokerError("append")
			p.Metrics.CycleFailed()
			return n, fmt.Errorf("append job for %s: %w", t.ID, err)
		}
		n++
	}
	p.Metrics.Published(n)
	return n, nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
