// Package memory is an in-process broker.Broker used for single-process runs
// and tests. It keeps the whole log in memory.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hamed0406/uptimedispatch/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

type Option func(*Broker)

// WithClaimTimeout sets how long an entry may stay pending before another
// ReadGroup may take it over. Zero disables reclaiming.
func WithClaimTimeout(d time.Duration) Option {
	return func(b *Broker) { b.claimTimeout = d }
}

// WithMaxLen caps the retained log; the oldest entries are trimmed first.
func WithMaxLen(n int) Option {
	return func(b *Broker) { b.maxLen = n }
}

// WithClock overrides the clock used for pending-entry idle times.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

type record struct {
	seq     uint64
	payload []byte
}

type pendingEntry struct {
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

type group struct {
	next    uint64
	pending map[uint64]*pendingEntry
}

type Broker struct {
	mu      sync.Mutex
	records []record // contiguous sequences, oldest first
	lastSeq uint64
	groups  map[string]*group
	wake    chan struct{}
	closed  bool

	claimTimeout time.Duration
	maxLen       int
	now          func() time.Time
}

func New(opts ...Option) *Broker {
	b := &Broker{
		groups: make(map[string]*group),
		wake:   make(chan struct{}),
		now:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Broker) Append(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", broker.ErrClosed
	}
	b.lastSeq++
	b.records = append(b.records, record{seq: b.lastSeq, payload: slices.Clone(payload)})
	b.trimLocked()

	close(b.wake)
	b.wake = make(chan struct{})
	return formatID(b.lastSeq), nil
}

func (b *Broker) ReadGroup(ctx context.Context, groupID, consumer string, count int, block time.Duration) ([]broker.Message, error) {
	if count < 1 {
		count = 1
	}
	deadline := time.Now().Add(block)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, broker.ErrClosed
		}
		msgs, nextClaim := b.deliverLocked(groupID, consumer, count)
		wake := b.wake
		b.mu.Unlock()

		if len(msgs) > 0 || block <= 0 {
			return msgs, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if nextClaim > 0 && nextClaim < wait {
			wait = nextClaim
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// deliverLocked hands out reclaimable entries first, then never-delivered
// ones. The returned duration is how long until the next pending entry
// becomes reclaimable (zero when none is waiting).
func (b *Broker) deliverLocked(groupID, consumer string, count int) ([]broker.Message, time.Duration) {
	g := b.groupLocked(groupID)
	now := b.now()
	var (
		out       []broker.Message
		nextClaim time.Duration
	)

	if b.claimTimeout > 0 && len(g.pending) > 0 {
		seqs := make([]uint64, 0, len(g.pending))
		for seq := range g.pending {
			seqs = append(seqs, seq)
		}
		slices.Sort(seqs)
		for _, seq := range seqs {
			if len(out) == count {
				break
			}
			p := g.pending[seq]
			idle := now.Sub(p.deliveredAt)
			if idle < b.claimTimeout {
				if left := b.claimTimeout - idle; nextClaim == 0 || left < nextClaim {
					nextClaim = left
				}
				continue
			}
			rec, ok := b.lookupLocked(seq)
			if !ok {
				delete(g.pending, seq)
				continue
			}
			p.consumer = consumer
			p.deliveredAt = now
			p.deliveries++
			out = append(out, message(rec, p.deliveries))
		}
	}

	for len(out) < count && g.next <= b.lastSeq {
		seq := g.next
		g.next++
		rec, ok := b.lookupLocked(seq)
		if !ok {
			continue
		}
		g.pending[seq] = &pendingEntry{consumer: consumer, deliveredAt: now, deliveries: 1}
		out = append(out, message(rec, 1))
	}
	return out, nextClaim
}

// groupLocked returns the named group, creating it at the head of the log.
func (b *Broker) groupLocked(id string) *group {
	g := b.groups[id]
	if g == nil {
		g = &group{next: 1, pending: make(map[uint64]*pendingEntry)}
		if len(b.records) > 0 {
			g.next = b.records[0].seq
		}
		b.groups[id] = g
	}
	return g
}

func (b *Broker) lookupLocked(seq uint64) (record, bool) {
	if len(b.records) == 0 || seq < b.records[0].seq {
		return record{}, false
	}
	i := seq - b.records[0].seq
	if i >= uint64(len(b.records)) {
		return record{}, false
	}
	return b.records[i], true
}

func (b *Broker) trimLocked() {
	if b.maxLen <= 0 || len(b.records) <= b.maxLen {
		return
	}
	b.records = b.records[len(b.records)-b.maxLen:]
	first := b.records[0].seq
	for _, g := range b.groups {
		if g.next < first {
			g.next = first
		}
		for seq := range g.pending {
			if seq < first {
				delete(g.pending, seq)
			}
		}
	}
}

func (b *Broker) Ack(ctx context.Context, groupID string, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.ErrClosed
	}
	g := b.groups[groupID]
	if g == nil {
		return nil
	}
	for _, id := range ids {
		seq, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		delete(g.pending, seq)
	}
	return nil
}

func (b *Broker) Pending(ctx context.Context, groupID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, broker.ErrClosed
	}
	if g := b.groups[groupID]; g != nil {
		return len(g.pending), nil
	}
	return 0, nil
}

// Owner reports which consumer of groupID currently holds entry id.
func (b *Broker) Owner(groupID, id string) (string, bool) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.groups[groupID]
	if g == nil {
		return "", false
	}
	p, ok := g.pending[seq]
	if !ok {
		return "", false
	}
	return p.consumer, true
}

// Close releases blocked readers. It is safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.wake)
	return nil
}

func message(r record, deliveries int) broker.Message {
	return broker.Message{ID: formatID(r.seq), Payload: slices.Clone(r.payload), Deliveries: deliveries}
}

func formatID(seq uint64) string { return strconv.FormatUint(seq, 10) }
