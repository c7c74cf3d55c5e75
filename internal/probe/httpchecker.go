package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one probe round trip.
const DefaultTimeout = 10 * time.Second

// HTTPChecker measures reachability with a GET. Any response that makes it
// back through the transport counts as success; 4xx and 5xx are not
// distinguished here.
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeURL(target), nil)
	if err != nil {
		return CheckResult{Success: false, Message: err.Error()}
	}
	req.Header.Set("User-Agent", "uptimedispatch-probe/1")

	resp, err := h.Client.Do(req)
	if err != nil {
		return CheckResult{Success: false, Message: err.Error(), LatencyMS: sinceMS(start)}
	}
	latency := sinceMS(start)
	// Drain a little so keep-alive connections can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	resp.Body.Close()

	return CheckResult{
		Success:    true,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}

func sinceMS(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000
}
