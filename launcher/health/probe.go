// Package health checks whether a launched server answers its status
// endpoint.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultStatusPath is appended to the server base URL.
const DefaultStatusPath = "service/local/status"

// Probe reports whether the server at baseURL is alive. An error explains a
// false result; callers treat errors as not alive.
type Probe interface {
	Alive(ctx context.Context, baseURL string) (bool, error)
}

// ProbeFunc adapts a plain function to Probe.
type ProbeFunc func(ctx context.Context, baseURL string) (bool, error)

// Alive calls f.
func (f ProbeFunc) Alive(ctx context.Context, baseURL string) (bool, error) {
	return f(ctx, baseURL)
}

// HTTPProbe implements Probe using HTTP GET requests.
type HTTPProbe struct {
	Client     *http.Client
	StatusPath string
}

// NewHTTPProbe creates an HTTPProbe whose requests time out after
// requestTimeout.
func NewHTTPProbe(requestTimeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		Client:     &http.Client{Timeout: requestTimeout},
		StatusPath: DefaultStatusPath,
	}
}

// Alive sends GET baseURL+StatusPath. Only a 200 response counts as alive.
func (p *HTTPProbe) Alive(ctx context.Context, baseURL string) (bool, error) {
	url := p.statusURL(baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create status request for %s: %w", url, err)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		// Connection refused while the server boots is expected.
		return false, fmt.Errorf("status request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	return false, fmt.Errorf("status check at %s returned %s", url, resp.Status)
}

func (p *HTTPProbe) statusURL(baseURL string) string {
	path := p.StatusPath
	if path == "" {
		path = DefaultStatusPath
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + strings.TrimPrefix(path, "/")
}

func (p *HTTPProbe) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}
