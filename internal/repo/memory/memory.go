package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
	ticks   []domain.Tick
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]domain.Target),
		ticks:   make([]domain.Tick, 0, 128),
	}
}

func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = *t
	return nil
}

// List returns targets oldest first so cycles publish in a stable order.
func (m *Store) List(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) Append(ctx context.Context, t *domain.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ObservedAt.IsZero() {
		t.ObservedAt = time.Now().UTC()
	}
	m.ticks = append(m.ticks, *t)
	return nil
}

func (m *Store) Latest(ctx context.Context, id domain.TargetID) ([]domain.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]domain.Tick)
	for _, t := range m.ticks {
		if t.TargetID != id {
			continue
		}
		cur, ok := latest[t.RegionID]
		if !ok || t.ObservedAt.After(cur.ObservedAt) {
			latest[t.RegionID] = t
		}
	}
	out := make([]domain.Tick, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out, nil
}

// Ticks returns a copy of every appended tick in append order.
func (m *Store) Ticks() []domain.Tick {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Tick, len(m.ticks))
	copy(out, m.ticks)
	return out
}

func (m *Store) Close() error { return nil }
