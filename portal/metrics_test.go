package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := New(srv.URL)

	okBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("self", "ok"))
	require.NoError(t, client.Get(context.Background(), "portals/self", NewParams(), nil))
	okAfter := testutil.ToFloat64(RequestsTotal.WithLabelValues("self", "ok"))
	assert.Equal(t, okBefore+1, okAfter)
}

func TestRequestMetricsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "bad request"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL)

	errBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("self", "error"))
	require.Error(t, client.Get(context.Background(), "portals/self", NewParams(), nil))
	errAfter := testutil.ToFloat64(RequestsTotal.WithLabelValues("self", "error"))
	assert.Equal(t, errBefore+1, errAfter)
}
