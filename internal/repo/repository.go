package repo

import (
	"context"

	"github.com/hamed0406/uptimedispatch/internal/domain"
)

// Ports (interfaces). The dispatch pipeline reads targets and appends ticks;
// registration and status services sit on the other side of the same tables.

// TargetSource lists every registered target.
type TargetSource interface {
	List(ctx context.Context) ([]domain.Target, error)
}

// TargetStore is the registration side; the pipeline itself never writes
// targets, but local runs and tests seed them through it.
type TargetStore interface {
	TargetSource
	Add(ctx context.Context, t *domain.Target) error
}

// TickStore accepts unordered concurrent appends from any number of workers.
type TickStore interface {
	Append(ctx context.Context, t *domain.Tick) error
}

// TickReader serves status collaborators.
type TickReader interface {
	// Latest returns the newest tick per region for a target.
	Latest(ctx context.Context, id domain.TargetID) ([]domain.Tick, error)
}

// Store bundles every port a backing database provides.
type Store interface {
	TargetStore
	TickStore
	TickReader
	Close() error
}
