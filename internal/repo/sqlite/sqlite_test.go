package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/uptimedispatch/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "uptime.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_TargetsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	created := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	if err := s.Add(ctx, &domain.Target{ID: "t1", URL: "example.com", CreatedAt: created}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	gen := &domain.Target{URL: "https://example.org"}
	if err := s.Add(ctx, gen); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if gen.ID == "" {
		t.Fatalf("expected generated id")
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != "t1" || !all[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected targets: %+v", all)
	}
}

func TestSQLiteStore_ConcurrentAppendsAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			region := "r1"
			if i%2 == 1 {
				region = "r2"
			}
			errs <- s.Append(ctx, &domain.Tick{
				TargetID:       "t1",
				RegionID:       region,
				Status:         domain.StatusUp,
				ResponseTimeMS: int64(i),
				ObservedAt:     base.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	latest, err := s.Latest(ctx, "t1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("want 2 regions, got %+v", latest)
	}
	if latest[0].RegionID != "r1" || latest[0].ResponseTimeMS != 18 {
		t.Fatalf("unexpected r1 latest: %+v", latest[0])
	}
	if latest[1].RegionID != "r2" || latest[1].ResponseTimeMS != 19 || !latest[1].ObservedAt.Equal(base.Add(19*time.Second)) {
		t.Fatalf("unexpected r2 latest: %+v", latest[1])
	}
}

func TestSQLiteStore_RejectsUnknownStatus(t *testing.T) {
	s := openTemp(t)
	err := s.Append(context.Background(), &domain.Tick{TargetID: "t1", RegionID: "r1", Status: domain.StatusUnknown})
	if err == nil {
		t.Fatalf("unknown is display-only and must not be stored")
	}
}
