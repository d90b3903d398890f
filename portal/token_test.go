package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *atomic.Int32, expiresIn time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":   "issued-token",
			"expires": time.Now().Add(expiresIn).UnixMilli(),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenManagerCachesToken(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, time.Hour)

	tm := NewTokenManager(srv.URL, "alice", "secret")

	ctx := context.Background()
	first, err := tm.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "issued-token", first)

	second, err := tm.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenManagerRefreshesInsideWindow(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 2*time.Minute)

	fc := clockwork.NewFakeClockAt(time.Now())
	tm := NewTokenManager(srv.URL, "alice", "secret", WithTokenClock(fc))

	ctx := context.Background()
	_, err := tm.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	// Still comfortably valid, no refresh.
	fc.Advance(30 * time.Second)
	_, err = tm.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	// Within 60s of expiry now, the next call renews.
	fc.Advance(45 * time.Second)
	_, err = tm.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTokenManagerSendsRefererBinding(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for key := range r.Form {
			gotForm[key] = r.Form.Get(key)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":   "issued-token",
			"expires": time.Now().Add(time.Hour).UnixMilli(),
		})
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "alice", "secret",
		WithTokenReferer("https://maps.example.com"), WithTokenLifetime(120))

	_, err := tm.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "alice", gotForm["username"])
	assert.Equal(t, "secret", gotForm["password"])
	assert.Equal(t, "referer", gotForm["client"])
	assert.Equal(t, "https://maps.example.com", gotForm["referer"])
	assert.Equal(t, "120", gotForm["expiration"])
	assert.Equal(t, "json", gotForm["f"])
}

func TestTokenManagerCredentialRejection(t *testing.T) {
	// The portal rejects credentials with HTTP 200 and an error envelope.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    400,
				"message": "Unable to generate token.",
				"details": []string{"Invalid username or password."},
			},
		})
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "alice", "wrong")

	_, err := tm.Token(context.Background())
	require.Error(t, err)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.True(t, tokenErr.Invalid)
	assert.Contains(t, err.Error(), "Unable to generate token.")
}

func TestTokenManagerHTTPStatuses(t *testing.T) {
	cases := []struct {
		status  int
		invalid bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		tm := NewTokenManager(srv.URL, "alice", "secret")
		_, err := tm.Token(context.Background())
		srv.Close()

		var tokenErr *TokenError
		require.ErrorAs(t, err, &tokenErr, "status %d", tc.status)
		assert.Equal(t, tc.invalid, tokenErr.Invalid, "status %d", tc.status)
	}
}

func TestTokenManagerEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"expires": time.Now().Add(time.Hour).UnixMilli()})
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "alice", "secret")

	_, err := tm.Token(context.Background())
	require.Error(t, err)

	var tokenErr *TokenError
	assert.True(t, errors.As(err, &tokenErr))
}

func TestStaticToken(t *testing.T) {
	token, err := StaticToken("api-key").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api-key", token)
}
