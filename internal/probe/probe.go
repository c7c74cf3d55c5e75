package probe

import (
	"context"
	"strings"
)

// CheckResult is the unified result of a single probe.
//
// Fields:
//   - Success: the round trip reached the target and a response came back,
//     whatever its HTTP status.
//   - StatusCode: HTTP status code when available; 0 for transport/DNS errors.
//   - LatencyMS: elapsed time until the response or the failure.
type CheckResult struct {
	Success    bool
	LatencyMS  float64
	Message    string
	StatusCode int
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}

// NormalizeURL prepends https:// when the stored URL has no scheme.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, "://") {
		return s
	}
	return "https://" + s
}
