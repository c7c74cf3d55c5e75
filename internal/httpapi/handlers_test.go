package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
	"github.com/hamed0406/uptimedispatch/internal/repo/memory"
)

// ---- test helpers ----

type failingTargets struct{}

func (failingTargets) List(ctx context.Context) ([]domain.Target, error) {
	return nil, errors.New("db down")
}

func setupRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	srv := NewServer(zap.NewNop(), store, store, metrics.New(), 10*time.Minute)
	// very high rate limits to avoid flakiness in tests
	return srv.Router([]string{"*"}, 10_000, 10_000), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
	return rr
}

// ---- tests ----

func TestListTargets(t *testing.T) {
	h, store := setupRouter(t)

	rr := get(t, h, "/api/targets")
	if rr.Code != 200 || rr.Body.String() != "[]\n" {
		t.Fatalf("empty list: %d %q", rr.Code, rr.Body.String())
	}

	if err := store.Add(context.Background(), &domain.Target{URL: "example.com"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	rr = get(t, h, "/api/targets")
	var ts []domain.Target
	if err := json.Unmarshal(rr.Body.Bytes(), &ts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ts) != 1 || ts[0].URL != "example.com" || ts[0].ID == "" {
		t.Fatalf("targets = %+v", ts)
	}
}

func TestListTargets_StoreError(t *testing.T) {
	srv := NewServer(zap.NewNop(), failingTargets{}, memory.New(), nil, 0)
	rr := get(t, srv.Router(nil, 0, 0), "/api/targets")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("want 500 got %d", rr.Code)
	}
}

func TestTargetStatus(t *testing.T) {
	h, store := setupRouter(t)

	// no ticks yet: unknown, never down
	rr := get(t, h, "/api/targets/t1/status")
	var st targetStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != 200 || st.Status != domain.StatusUnknown {
		t.Fatalf("want unknown, got %d %+v", rr.Code, st)
	}

	now := time.Now().UTC()
	_ = store.Append(context.Background(), &domain.Tick{
		TargetID: "t1", RegionID: "r1", Status: domain.StatusUp, ResponseTimeMS: 21, ObservedAt: now,
	})
	_ = store.Append(context.Background(), &domain.Tick{
		TargetID: "t1", RegionID: "r2", Status: domain.StatusDown, ObservedAt: now.Add(-time.Hour),
	})

	rr = get(t, h, "/api/targets/t1/status")
	st = targetStatus{}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != domain.StatusUp {
		t.Fatalf("overall = %s, want up", st.Status)
	}
	if len(st.Regions) != 2 {
		t.Fatalf("regions = %+v", st.Regions)
	}
	if st.Regions[0].RegionID != "r1" || st.Regions[0].ResponseTimeMS != 21 {
		t.Fatalf("r1 = %+v", st.Regions[0])
	}
	if st.Regions[1].Status != domain.StatusUnknown {
		t.Fatalf("stale r2 should be unknown, got %s", st.Regions[1].Status)
	}
}

func TestRouter_MetricsAndHealth(t *testing.T) {
	h, _ := setupRouter(t)
	if rr := get(t, h, "/healthz"); rr.Code != 200 {
		t.Fatalf("healthz: %d", rr.Code)
	}
	if rr := get(t, h, "/metrics"); rr.Code != 200 {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestRouter_CORSRestrictedOrigins(t *testing.T) {
	store := memory.New()
	h := NewServer(zap.NewNop(), store, store, nil, 0).Router([]string{"https://status.example.com"}, 0, 0)

	req := httptest.NewRequest("GET", "/api/targets", nil)
	req.Header.Set("Origin", "https://status.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://status.example.com" {
		t.Fatalf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest("GET", "/api/targets", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin should not be allowed, got %q", got)
	}
}

func TestRouter_RateLimitsAPIOnly(t *testing.T) {
	store := memory.New()
	h := NewServer(zap.NewNop(), store, store, nil, 0).Router(nil, 1, 1)

	if rr := get(t, h, "/api/targets"); rr.Code != 200 {
		t.Fatalf("first: %d", rr.Code)
	}
	if rr := get(t, h, "/api/targets"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: want 429 got %d", rr.Code)
	}
	if rr := get(t, h, "/healthz"); rr.Code != 200 {
		t.Fatalf("healthz must not be rate limited: %d", rr.Code)
	}
}
