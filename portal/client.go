package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pscheid92/geoportal/internal/platform/retry"
)

const defaultRequestTimeout = 30 * time.Second

// Client is the shared connection to a portal and the services it hosts.
// It performs GET/POST requests, appends authentication tokens, decodes
// JSON or binary payloads, and surfaces vendor error envelopes as typed
// errors.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	retry      retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTokenProvider attaches token authentication. Every request carries the
// provider's current token.
func WithTokenProvider(tp TokenProvider) Option {
	return func(cl *Client) { cl.tokens = tp }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithRateLimit throttles outgoing requests client-side.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetry overrides the transport retry policy.
func WithRetry(p retry.Policy) Option {
	return func(cl *Client) { cl.retry = p }
}

// WithCircuitBreaker guards the transport with a circuit breaker that opens
// after consecutive failures.
func WithCircuitBreaker(name string) Option {
	return func(cl *Client) {
		cl.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
				cl.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
}

// New creates a Client for the portal's sharing REST root, e.g.
// https://www.example.com/portal/sharing/rest. Service wrappers may pass
// absolute service URLs to the request methods; relative paths resolve
// against the portal root.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     slog.Default(),
		retry: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the portal sharing REST root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET request and decodes the JSON response into out.
// Vendor error envelopes become *ServerError.
func (c *Client) Get(ctx context.Context, rawURL string, params Params, out any) error {
	body, err := c.do(ctx, http.MethodGet, rawURL, params)
	if err != nil {
		return err
	}
	return decodeJSONBody(body, out)
}

// Post performs a form-encoded POST request and decodes the JSON response
// into out. The vendor API uses form posts for every write operation.
func (c *Client) Post(ctx context.Context, rawURL string, params Params, out any) error {
	body, err := c.do(ctx, http.MethodPost, rawURL, params)
	if err != nil {
		return err
	}
	return decodeJSONBody(body, out)
}

// GetBytes performs a GET request and returns the raw payload, for binary
// resources such as PBF tiles and exported images. When the payload turns
// out to be a vendor error envelope it is surfaced as *ServerError.
func (c *Client) GetBytes(ctx context.Context, rawURL string, params Params) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, rawURL, params)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Download performs a GET request and writes the payload to
// destDir/filename, returning the written path.
func (c *Client) Download(ctx context.Context, rawURL string, params Params, destDir, filename string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, rawURL, params)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	dest := filepath.Join(destDir, filename)
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	return dest, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, params Params) ([]byte, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = NewParams()
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain token: %w", err)
		}
		params = params.Clone().Set("token", token)
	}

	op := operationLabel(target)
	start := time.Now()
	body, err := retry.Do(ctx, c.retry, classifyTransport, func() ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &retryStop{err}
			}
		}
		if c.breaker != nil {
			res, err := c.breaker.Execute(func() (any, error) {
				return c.roundTrip(ctx, method, target, params)
			})
			if err != nil {
				return nil, err
			}
			return res.([]byte), nil
		}
		return c.roundTrip(ctx, method, target, params)
	})
	RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		RequestsTotal.WithLabelValues(op, "error").Inc()
		c.logger.Debug("portal request failed", "method", method, "operation", op, "error", err)
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}

	RequestsTotal.WithLabelValues(op, "ok").Inc()
	return body, nil
}

// roundTrip performs one HTTP exchange and maps non-success statuses and
// vendor error envelopes to typed errors.
func (c *Client) roundTrip(ctx context.Context, method, target string, params Params) ([]byte, error) {
	var req *http.Request
	var err error

	switch method {
	case http.MethodGet:
		u := target
		if encoded := params.Values().Encode(); encoded != "" {
			u = target + "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(params.Values().Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	if srvErr := decodeErrorEnvelope(body); srvErr != nil {
		return nil, srvErr
	}

	return body, nil
}

func (c *Client) resolve(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("relative path %q requires a portal base URL", rawURL)
	}
	return c.baseURL + "/" + strings.TrimLeft(rawURL, "/"), nil
}

// retryStop marks errors that must never be retried even though they are not
// vendor errors (e.g. context cancellation inside the limiter).
type retryStop struct{ err error }

func (e *retryStop) Error() string { return e.err.Error() }
func (e *retryStop) Unwrap() error { return e.err }

// classifyTransport sorts transport errors for the retry policy: 5xx and
// network failures are transient, 429 waits out the rate limit, everything
// else (vendor errors included) is permanent.
func classifyTransport(err error) retry.Action {
	var stop *retryStop
	if errors.As(err, &stop) {
		return retry.Stop
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return retry.Stop
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case httpErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	// Remaining cases are network-level failures.
	return retry.Retry
}

// operationLabel derives the metrics label from the last path segment, which
// for this API names the REST operation (query, exportTiles, identify, ...).
func operationLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	seg := path.Base(u.Path)
	if seg == "" || seg == "/" || seg == "." {
		return "root"
	}
	// Job ids and item ids would explode label cardinality.
	switch path.Base(path.Dir(u.Path)) {
	case "jobs":
		return "jobStatus"
	case "items":
		return "item"
	}
	return seg
}

func decodeJSONBody(body []byte, out any) error {
	if out == nil {
		return nil
	}
	return unmarshalJSON(body, out)
}

func unmarshalJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
