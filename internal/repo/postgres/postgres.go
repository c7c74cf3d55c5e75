package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (id, url, created_at)
		 VALUES ($1, $2, $3)`,
		string(t.ID), t.URL, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, created_at
		   FROM targets
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			id        string
			url       string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &url, &createdAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, domain.Target{
			ID:        domain.TargetID(id),
			URL:       url,
			CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}

// ---- TickStore ----

func (s *Store) Append(ctx context.Context, t *domain.Tick) error {
	if t.ObservedAt.IsZero() {
		t.ObservedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ticks
		   (target_id, region_id, status, response_time_ms, reason, observed_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6)`,
		string(t.TargetID), t.RegionID, string(t.Status), t.ResponseTimeMS, t.Reason, t.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// ---- TickReader ----

func (s *Store) Latest(ctx context.Context, id domain.TargetID) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (region_id)
       region_id,
       status,
       response_time_ms,
       reason,
       observed_at
  FROM ticks
 WHERE target_id = $1
 ORDER BY region_id, observed_at DESC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("latest ticks: %w", err)
	}
	defer rows.Close()

	var out []domain.Tick
	for rows.Next() {
		var (
			region     string
			status     string
			respMS     int64
			reason     string
			observedAt time.Time
		)
		if err := rows.Scan(&region, &status, &respMS, &reason, &observedAt); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, domain.Tick{
			TargetID:       id,
			RegionID:       region,
			Status:         domain.TickStatus(status),
			ResponseTimeMS: respMS,
			Reason:         reason,
			ObservedAt:     observedAt,
		})
	}
	return out, rows.Err()
}
