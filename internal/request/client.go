package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/metrics"
	"github.com/yourusername/stop-finder/internal/observability"
)

const userAgent = "stop-finder/1.0"

// Response is what a Transport hands back for a completed request.
type Response struct {
	StatusCode int
	Body       string
}

// Transport performs a single HTTP GET.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// MaxBodySize is the largest response body HTTPTransport accepts.
const MaxBodySize = 8 << 20

// HTTPTransport is a Transport backed by net/http.
type HTTPTransport struct {
	http *http.Client
}

// NewHTTPTransport returns a Transport whose requests time out after timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{http: &http.Client{Timeout: timeout}}
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("reading body: larger than %d bytes", MaxBodySize)
	}
	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports domain.ErrNetwork as a match.
func (e *NetworkError) Is(target error) bool { return target == domain.ErrNetwork }

// StatusError reports a non-200 upstream response. The body is not kept.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Is reports domain.ErrHTTPStatus as a match.
func (e *StatusError) Is(target error) bool { return target == domain.ErrHTTPStatus }

// Client issues classified GET requests on behalf of one upstream service.
type Client struct {
	service   string
	transport Transport
}

// NewClient returns a Client. service names the upstream in logs, metrics and spans.
func NewClient(service string, transport Transport) *Client {
	return &Client{service: service, transport: transport}
}

// Get fetches rawURL once. A nil error means status 200 and body is the raw
// response text; otherwise err is a *NetworkError or a *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	logURL := Redact(rawURL)
	ctx, span := observability.StartSpan(ctx, "GET "+c.service,
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", logURL),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.transport.Get(ctx, rawURL)
	metrics.ObserveUpstreamDuration(c.service, time.Since(start))

	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = logURL
		}
		metrics.CountUpstream(c.service, metrics.OutcomeNetworkError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		slog.Debug("upstream request failed", "service", c.service, "url", logURL, "error", err)
		return "", &NetworkError{URL: logURL, Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		metrics.CountUpstream(c.service, metrics.OutcomeHTTPStatus)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		slog.Debug("upstream rejected request", "service", c.service, "url", logURL, "status", resp.StatusCode)
		return "", &StatusError{URL: logURL, StatusCode: resp.StatusCode}
	}

	metrics.CountUpstream(c.service, metrics.OutcomeOK)
	slog.Debug("upstream request ok", "service", c.service, "url", logURL, "bytes", len(resp.Body))
	return resp.Body, nil
}
