package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober fetches a single URL and reports its HTTP status code.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, url string) (int, error)

// Probe calls f(ctx, url).
func (f ProberFunc) Probe(ctx context.Context, url string) (int, error) {
	return f(ctx, url)
}

// TransportError is returned when no HTTP response could be obtained for a URL.
// Responses with 4xx or 5xx codes are not transport errors.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPProber issues GET requests with a shared http.Client.
type HTTPProber struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPProber creates a prober whose requests time out after timeout.
// An empty userAgent leaves Go's default header in place.
func NewHTTPProber(timeout time.Duration, userAgent string) *HTTPProber {
	return &HTTPProber{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Probe performs one GET against url. The body is drained so the connection
// can be reused.
func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &TransportError{URL: url, Err: err}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
