// Package portaltest runs a fake portal for client tests: a generateToken
// endpoint plus scriptable JSON routes, so transport, token, and job code can
// be exercised against real HTTP.
package portaltest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// Token is the token value the fake generateToken endpoint hands out.
const Token = "fake-portal-token"

// Server is a fake portal backed by httptest. Routes are registered on the
// embedded echo instance; the generateToken endpoint is preinstalled.
type Server struct {
	*httptest.Server
	Echo *echo.Echo

	mu         sync.Mutex
	tokenCalls int
}

// New starts a fake portal and shuts it down with the test.
func New(t *testing.T) *Server {
	t.Helper()

	e := echo.New()
	e.HideBanner = true

	srv := &Server{Echo: e}
	e.Any("/sharing/rest/generateToken", func(c echo.Context) error {
		srv.mu.Lock()
		srv.tokenCalls++
		srv.mu.Unlock()
		return c.JSON(http.StatusOK, map[string]any{
			"token":   Token,
			"expires": time.Now().Add(time.Hour).UnixMilli(),
		})
	})

	srv.Server = httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

// RestURL returns the portal's sharing/rest root, the base URL clients are
// pointed at.
func (s *Server) RestURL() string {
	return s.URL + "/sharing/rest"
}

// TokenCalls reports how often generateToken was hit.
func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// JSON registers a route answering every request with the given payload.
func (s *Server) JSON(path string, payload any) {
	s.Echo.Any(path, func(c echo.Context) error {
		return c.JSON(http.StatusOK, payload)
	})
}

// JSONFunc registers a route computing its payload per request.
func (s *Server) JSONFunc(path string, fn func(c echo.Context) any) {
	s.Echo.Any(path, func(c echo.Context) error {
		return c.JSON(http.StatusOK, fn(c))
	})
}

// Script registers a route that walks through the given payloads, one per
// request, and sticks on the last one. Job status sequences are scripted
// this way.
func (s *Server) Script(path string, payloads ...any) {
	var mu sync.Mutex
	calls := 0
	s.Echo.Any(path, func(c echo.Context) error {
		mu.Lock()
		i := calls
		if i >= len(payloads) {
			i = len(payloads) - 1
		}
		calls++
		mu.Unlock()
		return c.JSON(http.StatusOK, payloads[i])
	})
}

// Fail registers a route answering with a portal error envelope. The portal
// wraps errors in HTTP 200 responses.
func (s *Server) Fail(path string, code int, message string) {
	s.JSON(path, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": []string{},
		},
	})
}
