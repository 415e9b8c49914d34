package llama

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// Probe status classifications. "starting" and "stopped" are produced by the
// lifecycle facade when it folds in supervisor process state; the prober
// itself only sees the HTTP surface.
const (
	StatusRunning      = "running"
	StatusInitializing = "initializing"
	StatusUnavailable  = "unavailable"
)

// ProbeResult classifies one health check.
type ProbeResult struct {
	Success bool
	Status  string
}

// Probe issues a tolerant health check. HTTP 200 means the server is up and
// serving; HTTP 503 is deliberately a successful probe with status
// "initializing" because the server answers requests before the model finishes
// loading. Network failure falls back to the model metadata endpoint, since
// some server builds expose readiness only there.
func (c *Client) Probe(ctx context.Context) ProbeResult {
	res := c.probeEndpoint(ctx, "/health")
	if !res.Success {
		if fb := c.probeEndpoint(ctx, "/model"); fb.Success {
			res = fb
		}
	}
	probeResults.WithLabelValues(res.Status).Inc()
	return res
}

func (c *Client) probeEndpoint(ctx context.Context, path string) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ProbeResult{Status: StatusUnavailable}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeResult{Status: StatusUnavailable}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ProbeResult{Success: true, Status: StatusInitializing}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ProbeResult{Success: true, Status: StatusRunning}
	default:
		return ProbeResult{Status: StatusUnavailable}
	}
}

var errProbeUnavailable = errors.New("probe unavailable")

// PingWithRetry is a cheap boolean gate: true on the first successful probe
// (200 or 503), false once retries are exhausted or ctx is done.
func (c *Client) PingWithRetry(ctx context.Context, retries int, delay time.Duration) bool {
	ok := false
	op := func() error {
		if res := c.Probe(ctx); res.Success {
			ok = true
			return nil
		}
		return errProbeUnavailable
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)), ctx)
	_ = backoff.Retry(op, b)
	return ok
}
