package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/config"
	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/probe"
)

type fakeChecker struct {
	out probe.CheckResult
}

func (f *fakeChecker) Check(_ context.Context, _ string) probe.CheckResult {
	return f.out
}

func baseConfig() *config.Config {
	return &config.Config{
		BrokerURL:        "memory",
		ClaimTimeout:     time.Minute,
		ProbeTimeout:     time.Second,
		BatchSize:        5,
		BlockTimeout:     20 * time.Millisecond,
		IdleWait:         5 * time.Millisecond,
		PersistAttempts:  1,
		PersistBackoff:   time.Millisecond,
		ProducerInterval: time.Second,
		APIAddr:          ":8080",
		AllowedOrigins:   "https://status.example.com",
	}
}

func levels(fs []finding) map[level]int {
	out := map[level]int{}
	for _, f := range fs {
		out[f.Level]++
	}
	return out
}

func TestPreflight_WorkerMissingIdentity(t *testing.T) {
	fs := preflight(baseConfig(), "worker")
	if levels(fs)[levelFail] != 1 {
		t.Fatalf("want one failure, got %+v", fs)
	}
	if !strings.Contains(fs[0].Message, "REGION_ID") {
		t.Fatalf("failure should name REGION_ID: %q", fs[0].Message)
	}
}

func TestPreflight_WorkerOK(t *testing.T) {
	c := baseConfig()
	c.RegionID, c.WorkerID = "eu", "w1"
	c.SQLitePath = "/var/lib/uptime/ticks.db"
	fs := preflight(c, "worker")
	lv := levels(fs)
	if lv[levelFail] != 0 {
		t.Fatalf("unexpected failure: %+v", fs)
	}
	// memory broker is allowed but flagged
	if lv[levelWarn] != 1 {
		t.Fatalf("want one warning, got %+v", fs)
	}
}

func TestPreflight_ClaimTimeoutBelowProbeTimeout(t *testing.T) {
	c := baseConfig()
	c.RegionID, c.WorkerID = "eu", "w1"
	c.ClaimTimeout = c.ProbeTimeout
	found := false
	for _, f := range preflight(c, "worker") {
		if f.Level == levelWarn && strings.Contains(f.Message, "CLAIM_TIMEOUT") {
			found = true
		}
	}
	if !found {
		t.Fatal("want CLAIM_TIMEOUT warning")
	}
}

func TestPreflight_APIAndUnknownRole(t *testing.T) {
	c := baseConfig()
	if levels(preflight(c, "api"))[levelFail] != 0 {
		t.Fatal("api preflight should pass")
	}
	if levels(preflight(c, "alerter"))[levelFail] != 1 {
		t.Fatal("unknown role must fail")
	}
}

func TestRunCheck_Up(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	chk := &fakeChecker{out: probe.CheckResult{Success: true, StatusCode: 503, LatencyMS: 7, Message: "503 Service Unavailable"}}

	out := runCheck(cmd, chk, "example.com")
	if out.URL != "https://example.com" || out.Status != domain.StatusUp || out.DNSClass != "" {
		t.Fatalf("unexpected %+v", out)
	}

	var buf bytes.Buffer
	printCheck(&buf, out)
	if !strings.Contains(buf.String(), "https://example.com UP") {
		t.Fatalf("output:\n%s", buf.String())
	}
}

func TestRunCheck_DownRunsDNSDiagnosis(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	chk := &fakeChecker{out: probe.CheckResult{Success: false, LatencyMS: 2, Message: "connection refused"}}

	out := runCheck(cmd, chk, "http://127.0.0.1:1")
	if out.Status != domain.StatusDown {
		t.Fatalf("status = %s", out.Status)
	}
	if out.DNSClass != probe.DNSResolves {
		t.Fatalf("IP literal should resolve, got %q", out.DNSClass)
	}
}

func TestRunDev_ProducesTicksPerRegion(t *testing.T) {
	cfg = baseConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	chk := &fakeChecker{out: probe.CheckResult{Success: true, StatusCode: 200, LatencyMS: 5}}
	store, err := runDev(ctx, zap.NewNop(), chk, devOptions{
		targets:  []string{"example.com", "go.dev"},
		regions:  []string{"eu", "us"},
		workers:  2,
		interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("runDev: %v", err)
	}

	seen := map[string]int{}
	for _, tk := range store.Ticks() {
		if tk.Status != domain.StatusUp {
			t.Fatalf("unexpected tick %+v", tk)
		}
		seen[tk.RegionID]++
	}
	// one immediate cycle, two targets, each region probes each once
	if seen["eu"] != 2 || seen["us"] != 2 {
		t.Fatalf("ticks per region = %v", seen)
	}

	var buf bytes.Buffer
	printTicks(&buf, store.Ticks())
	if !strings.Contains(buf.String(), "4 tick(s)") {
		t.Fatalf("output:\n%s", buf.String())
	}
}
