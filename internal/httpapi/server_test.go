package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []domain.Tick{
		{TargetID: "t1", RegionID: "us", Status: domain.StatusDown, ObservedAt: now.Add(-time.Minute)},
		{TargetID: "t1", RegionID: "eu", Status: domain.StatusUp, ResponseTimeMS: 40, ObservedAt: now.Add(-2 * time.Minute)},
		{TargetID: "t1", RegionID: "ap", Status: domain.StatusUp, ObservedAt: now.Add(-time.Hour)},
	}

	got := summarize("t1", ticks, now, 10*time.Minute)
	if got.Status != domain.StatusDown {
		t.Fatalf("overall should follow the newest tick, got %s", got.Status)
	}
	want := map[string]domain.TickStatus{"ap": domain.StatusUnknown, "eu": domain.StatusUp, "us": domain.StatusDown}
	if len(got.Regions) != 3 {
		t.Fatalf("regions = %+v", got.Regions)
	}
	for i, r := range got.Regions {
		if want[r.RegionID] != r.Status {
			t.Fatalf("region %s status %s want %s", r.RegionID, r.Status, want[r.RegionID])
		}
		if i > 0 && got.Regions[i-1].RegionID > r.RegionID {
			t.Fatalf("regions not sorted: %+v", got.Regions)
		}
	}
}

func TestSummarize_NoTicksIsUnknown(t *testing.T) {
	got := summarize("t9", nil, time.Now(), time.Minute)
	if got.Status != domain.StatusUnknown || len(got.Regions) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestOpsRouter(t *testing.T) {
	m := metrics.New()
	m.Acked("r1", 3)
	h := OpsRouter(m)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != 200 || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `uptime_entries_acked_total{region="r1"} 3`) {
		t.Fatalf("acked counter missing from exposition:\n%s", rr.Body.String())
	}
}

func TestOpsRouter_NoMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	OpsRouter(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404 without a registry, got %d", rr.Code)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, zap.NewNop(), "127.0.0.1:0", OpsRouter(nil)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServe_BadAddr(t *testing.T) {
	err := Serve(context.Background(), zap.NewNop(), "256.0.0.1:bad", OpsRouter(nil))
	if err == nil {
		t.Fatal("want listen error")
	}
}
