package remote

import (
	"context"
	"net/http"
	"time"
)

const probeTimeout = 5 * time.Second

// Probe is the outcome of a reachability check against the base URL.
type Probe struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMs  int    `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// Probe sends a HEAD request to the base URL and reports how long the
// central system took to answer. Any HTTP response counts as reachable.
// With mocks enabled and no base URL the remote is reported reachable.
func (c *Client) Probe(ctx context.Context) Probe {
	p := Probe{URL: c.baseURL}
	if c.baseURL == "" {
		p.Reachable = c.useMocks
		if !p.Reachable {
			p.Error = "api base url is not configured"
		}
		return p
	}

	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		p.Error = err.Error()
		return p
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	p.LatencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		p.Error = err.Error()
		c.logger.Debug("remote probe failed", "url", c.baseURL, "error", err)
		return p
	}
	resp.Body.Close()

	p.Reachable = true
	p.StatusCode = resp.StatusCode
	return p
}
