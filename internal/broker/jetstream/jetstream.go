// Package jetstream implements broker.Broker on a NATS JetStream stream.
//
// Each consumer group is a durable pull consumer on the stream; every worker
// process of a region binds to the same durable, so the server hands each
// entry to one fetcher at a time. The consumer's AckWait is the claim
// timeout: unacknowledged entries are redelivered once it elapses.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"

	"github.com/hamed0406/uptimedispatch/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

// minFetchWait keeps pull requests above what the server will honor.
const minFetchWait = 100 * time.Millisecond

type Options struct {
	Stream       string        // stream name, e.g. "uptime-jobs"
	Subject      string        // subject entries are published on
	ClaimTimeout time.Duration // consumer AckWait
	MaxMsgs      int64         // stream retention cap; <= 0 means unlimited
	Name         string        // connection name shown by the server
}

type Broker struct {
	nc   *nats.Conn
	js   nats.JetStreamContext
	opts Options

	mu       sync.Mutex
	subs     map[string]*nats.Subscription
	inflight map[string]map[string]heldMsg
	closed   bool
	now      func() time.Time
}

// heldMsg is a delivered message this process may still ack. Handles older
// than the claim timeout are dropped: the server has redelivered the entry
// and another consumer may already have acked it.
type heldMsg struct {
	msg       *nats.Msg
	fetchedAt time.Time
}

// Open connects to url and ensures the stream exists. Connection problems at
// startup are returned immediately so the process can fail fast.
func Open(url string, opts Options, natsOpts ...nats.Option) (*Broker, error) {
	if opts.Stream == "" || opts.Subject == "" {
		return nil, errors.New("jetstream: stream and subject are required")
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = time.Minute
	}
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	if opts.Name != "" {
		defaults = append(defaults, nats.Name(opts.Name))
	}
	nc, err := nats.Connect(url, append(defaults, natsOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to NATS at %s: %v", broker.ErrUnavailable, url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	b := &Broker{
		nc:       nc,
		js:       js,
		opts:     opts,
		subs:     make(map[string]*nats.Subscription),
		inflight: make(map[string]map[string]heldMsg),
		now:      time.Now,
	}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) ensureStream() error {
	_, err := b.js.StreamInfo(b.opts.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return b.unavailable("stream info", err)
	}
	cfg := &nats.StreamConfig{
		Name:      b.opts.Stream,
		Subjects:  []string{b.opts.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if b.opts.MaxMsgs > 0 {
		cfg.MaxMsgs = b.opts.MaxMsgs
	}
	if _, err := b.js.AddStream(cfg); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("creating stream %s: %w", b.opts.Stream, err)
	}
	return nil
}

func (b *Broker) Append(ctx context.Context, payload []byte) (string, error) {
	if b.isClosed() {
		return "", broker.ErrClosed
	}
	ack, err := b.js.Publish(b.opts.Subject, payload, nats.Context(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", b.unavailable("publish", err)
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

func (b *Broker) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]broker.Message, error) {
	if count < 1 {
		count = 1
	}
	sub, err := b.subscription(group)
	if err != nil {
		return nil, err
	}
	if block < minFetchWait {
		block = minFetchWait
	}
	fctx, cancel := context.WithTimeout(ctx, block)
	defer cancel()

	msgs, err := sub.Fetch(count, nats.Context(fctx))
	if err != nil {
		if b.isClosed() {
			return nil, broker.ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			b.mu.Lock()
			b.pruneLocked(group)
			b.mu.Unlock()
			return nil, nil
		}
		return nil, b.unavailable("fetch", err)
	}
	return b.hold(group, msgs)
}

// hold records fetched messages for a later Ack. A Close that raced the
// fetch wins; the messages are left for redelivery.
func (b *Broker) hold(group string, msgs []*nats.Msg) ([]broker.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, broker.ErrClosed
	}
	b.pruneLocked(group)
	held := b.inflight[group]
	if held == nil {
		held = make(map[string]heldMsg)
		b.inflight[group] = held
	}

	now := b.now()
	out := make([]broker.Message, 0, len(msgs))
	for _, m := range msgs {
		meta, err := m.Metadata()
		if err != nil {
			// Not a JetStream delivery; nothing we could ack later.
			continue
		}
		id := strconv.FormatUint(meta.Sequence.Stream, 10)
		held[id] = heldMsg{msg: m, fetchedAt: now}
		out = append(out, broker.Message{ID: id, Payload: m.Data, Deliveries: int(meta.NumDelivered)})
	}
	return out, nil
}

func (b *Broker) pruneLocked(group string) {
	held := b.inflight[group]
	if len(held) == 0 {
		return
	}
	now := b.now()
	for id, h := range held {
		if now.Sub(h.fetchedAt) >= b.opts.ClaimTimeout {
			delete(held, id)
		}
	}
}

func (b *Broker) Ack(ctx context.Context, group string, ids ...string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return broker.ErrClosed
	}
	held := b.inflight[group]
	toAck := make([]*nats.Msg, 0, len(ids))
	for _, id := range ids {
		if h, ok := held[id]; ok {
			toAck = append(toAck, h.msg)
			delete(held, id)
		}
	}
	b.mu.Unlock()

	var (
		errs  error
		acked int
	)
	for _, m := range toAck {
		if err := m.AckSync(nats.Context(ctx)); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		acked++
	}
	if errs != nil {
		return &broker.AckError{Acked: acked, Err: b.unavailable("ack", errs)}
	}
	return nil
}

func (b *Broker) Pending(ctx context.Context, group string) (int, error) {
	if b.isClosed() {
		return 0, broker.ErrClosed
	}
	ci, err := b.js.ConsumerInfo(b.opts.Stream, durableName(group), nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrConsumerNotFound) {
			return 0, nil
		}
		return 0, b.unavailable("consumer info", err)
	}
	return ci.NumAckPending, nil
}

// Close drops the connection without deleting durable consumers, so pending
// entries survive for the group's other workers.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = make(map[string]*nats.Subscription)
	b.inflight = make(map[string]map[string]heldMsg)
	b.mu.Unlock()
	b.nc.Close()
	return nil
}

func (b *Broker) subscription(group string) (*nats.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, broker.ErrClosed
	}
	if sub, ok := b.subs[group]; ok {
		return sub, nil
	}
	durable := durableName(group)
	if err := b.ensureConsumer(durable); err != nil {
		return nil, err
	}
	sub, err := b.js.PullSubscribe(b.opts.Subject, durable, nats.Bind(b.opts.Stream, durable))
	if err != nil {
		return nil, b.unavailable("pull subscribe", err)
	}
	b.subs[group] = sub
	return sub, nil
}

func (b *Broker) ensureConsumer(durable string) error {
	_, err := b.js.ConsumerInfo(b.opts.Stream, durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return b.unavailable("consumer info", err)
	}
	_, err = b.js.AddConsumer(b.opts.Stream, &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       b.opts.ClaimTimeout,
		DeliverPolicy: nats.DeliverAllPolicy,
		FilterSubject: b.opts.Subject,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("creating consumer %s: %w", durable, err)
	}
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Broker) unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", broker.ErrUnavailable, op, err)
}

// durableName maps a group id onto the characters NATS allows in consumer
// names.
func durableName(group string) string {
	out := make([]rune, 0, len(group))
	for _, r := range group {
		switch r {
		case '.', '*', '>', ' ', '\t', '/', '\\':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return "group_" + string(out)
}
