// Package sqlite is a single-file store for local runs: one worker host, or
// the in-process dev pipeline. It creates its tables on open.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS targets (
  id         TEXT PRIMARY KEY,
  url        TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ticks (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  target_id        TEXT NOT NULL,
  region_id        TEXT NOT NULL,
  status           TEXT NOT NULL CHECK (status IN ('up', 'down')),
  response_time_ms INTEGER NOT NULL,
  reason           TEXT NOT NULL DEFAULT '',
  observed_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_target_region_time ON ticks (target_id, region_id, observed_at);
`

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc serializes writers per file; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, url, created_at) VALUES (?, ?, ?)`,
		string(t.ID), t.URL, t.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, created_at FROM targets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			id, url string
			created int64
		)
		if err := rows.Scan(&id, &url, &created); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, domain.Target{ID: domain.TargetID(id), URL: url, CreatedAt: time.Unix(0, created).UTC()})
	}
	return out, rows.Err()
}

func (s *Store) Append(ctx context.Context, t *domain.Tick) error {
	if t.ObservedAt.IsZero() {
		t.ObservedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticks (target_id, region_id, status, response_time_ms, reason, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(t.TargetID), t.RegionID, string(t.Status), t.ResponseTimeMS, t.Reason, t.ObservedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// Latest relies on SQLite taking bare columns from the row that holds MAX().
func (s *Store) Latest(ctx context.Context, id domain.TargetID) ([]domain.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT region_id, status, response_time_ms, reason, MAX(observed_at)
  FROM ticks
 WHERE target_id = ?
 GROUP BY region_id
 ORDER BY region_id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("latest ticks: %w", err)
	}
	defer rows.Close()

	var out []domain.Tick
	for rows.Next() {
		var (
			region, status, reason string
			respMS, observed       int64
		)
		if err := rows.Scan(&region, &status, &respMS, &reason, &observed); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, domain.Tick{
			TargetID:       id,
			RegionID:       region,
			Status:         domain.TickStatus(status),
			ResponseTimeMS: respMS,
			Reason:         reason,
			ObservedAt:     time.Unix(0, observed).UTC(),
		})
	}
	return out, rows.Err()
}
