// Package tickfeed mirrors persisted ticks onto a stream for downstream
// consumers. The tick store stays the source of truth; the feed is best effort.
package tickfeed

import (
	"context"

	"github.com/hamed0406/uptimedispatch/internal/domain"
)

// Publisher emits ticks. Callers log and ignore errors.
type Publisher interface {
	Publish(ctx context.Context, t domain.Tick) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}

// Noop discards every tick; used when no feed is configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Tick) error { return nil }
func (Noop) Close() error                               { return nil }
