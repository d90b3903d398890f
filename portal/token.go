package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// TokenProvider supplies the access token appended to authenticated requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// refreshWindow is how close to expiry a token may get before it is renewed.
const refreshWindow = 60 * time.Second

const defaultTokenMinutes = 60

// TokenManager acquires portal tokens from the generateToken endpoint and
// renews them shortly before they expire. Concurrent callers share a single
// in-flight refresh.
type TokenManager struct {
	httpClient *http.Client
	tokenURL   string
	username   string
	password   string
	referer    string
	minutes    int
	clock      clockwork.Clock

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenHTTPClient overrides the HTTP client used for token requests.
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(tm *TokenManager) { tm.httpClient = c }
}

// WithTokenClock injects the clock, used by tests.
func WithTokenClock(clock clockwork.Clock) TokenOption {
	return func(tm *TokenManager) { tm.clock = clock }
}

// WithTokenReferer sets the referer bound into issued tokens.
func WithTokenReferer(referer string) TokenOption {
	return func(tm *TokenManager) { tm.referer = referer }
}

// WithTokenLifetime requests tokens valid for the given number of minutes.
func WithTokenLifetime(minutes int) TokenOption {
	return func(tm *TokenManager) { tm.minutes = minutes }
}

// NewTokenManager creates a TokenManager for the portal's sharing REST root,
// e.g. https://www.example.com/portal/sharing/rest.
func NewTokenManager(portalURL, username, password string, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokenURL:   strings.TrimRight(portalURL, "/") + "/generateToken",
		username:   username,
		password:   password,
		referer:    "geoportal-go",
		minutes:    defaultTokenMinutes,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Token returns a valid token, renewing it when it expires within the
// refresh window.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	token, expiry := tm.token, tm.expiry
	tm.mu.Unlock()

	if token != "" && tm.clock.Now().Add(refreshWindow).Before(expiry) {
		return token, nil
	}

	fresh, err, _ := tm.group.Do("refresh", func() (any, error) {
		// Another caller may have refreshed while this one waited.
		tm.mu.Lock()
		token, expiry := tm.token, tm.expiry
		tm.mu.Unlock()
		if token != "" && tm.clock.Now().Add(refreshWindow).Before(expiry) {
			return token, nil
		}

		newToken, newExpiry, err := tm.generate(ctx)
		if err != nil {
			TokenRefreshesTotal.WithLabelValues("error").Inc()
			return "", err
		}
		TokenRefreshesTotal.WithLabelValues("ok").Inc()

		tm.mu.Lock()
		tm.token, tm.expiry = newToken, newExpiry
		tm.mu.Unlock()
		return newToken, nil
	})
	if err != nil {
		return "", err
	}
	return fresh.(string), nil
}

func (tm *TokenManager) generate(ctx context.Context) (string, time.Time, error) {
	form := NewParams()
	form.Set("username", tm.username)
	form.Set("password", tm.password)
	form.Set("client", "referer")
	form.Set("referer", tm.referer)
	form.SetInt("expiration", tm.minutes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, strings.NewReader(form.Values().Encode()))
	if err != nil {
		return "", time.Time{}, &TokenError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, &TokenError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, &TokenError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		invalid := resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized
		return "", time.Time{}, &TokenError{
			Invalid: invalid,
			Err:     fmt.Errorf("generateToken returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	// Credential rejections arrive as HTTP 200 with an error envelope.
	if srvErr := decodeErrorEnvelope(body); srvErr != nil {
		return "", time.Time{}, &TokenError{Invalid: true, Err: srvErr}
	}

	var result struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"` // epoch milliseconds
	}
	if err := unmarshalJSON(body, &result); err != nil {
		return "", time.Time{}, &TokenError{Err: err}
	}
	if result.Token == "" {
		return "", time.Time{}, &TokenError{Err: fmt.Errorf("generateToken response carries no token")}
	}

	return result.Token, time.UnixMilli(result.Expires), nil
}

// StaticToken adapts a pre-issued token (e.g. an API key) to TokenProvider.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
