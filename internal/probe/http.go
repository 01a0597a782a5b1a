package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/opsfleet/agent-control/internal/events"
)

// HTTPDoer is the seam the http probe is tested against, matching the
// shape of *http.Client without requiring one.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPChecker is the on-host "HTTP" probe: GET <host>:<port><path> with
// configured headers. Healthy iff the response status is in
// HealthyStatusCodes (empty means "any 2xx"). The response body becomes
// the Status string, truncated to a sane size so a misbehaving endpoint
// can't balloon memory.
type HTTPChecker struct {
	Client             HTTPDoer
	Host               string
	Port               int
	Path               string
	Headers            map[string]string
	HealthyStatusCodes []int
	Timeout            time.Duration
}

const maxBodyBytes = 4096

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d%s", c.Host, c.Port, c.Path)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "building http probe request")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	now := uint64(time.Now().UnixNano())
	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "http probe request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	healthy := c.statusHealthy(resp.StatusCode)

	hu := &events.HealthUpdate{
		Healthy:            healthy,
		Status:             string(body),
		StatusTimeUnixNano: now,
	}
	if !healthy {
		hu.LastError = fmt.Sprintf("unhealthy status code %d", resp.StatusCode)
	}
	return Result{Health: hu}, nil
}

func (c *HTTPChecker) statusHealthy(code int) bool {
	if len(c.HealthyStatusCodes) == 0 {
		return code >= 200 && code < 300
	}
	for _, want := range c.HealthyStatusCodes {
		if code == want {
			return true
		}
	}
	return false
}
