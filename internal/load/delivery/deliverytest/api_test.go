package deliverytest_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/courier/internal/load/catalog"
	"github.com/wesleyorama2/courier/internal/load/config"
	"github.com/wesleyorama2/courier/internal/load/delivery"
	"github.com/wesleyorama2/courier/internal/load/delivery/deliverytest"
	"github.com/wesleyorama2/courier/internal/load/engine"
)

func do(t *testing.T, srv *httptest.Server, method, path, body, token string) *catalog.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return &catalog.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: []byte(buf.String())}
}

func TestAPI_Endpoints(t *testing.T) {
	api := deliverytest.NewAPI("/api")
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	login := do(t, srv, http.MethodPost, "/api/auth/login", `{"email":"test1@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, login.StatusCode)
	token, ok := delivery.TokenExtractor(login.Body)
	require.True(t, ok)

	bad := do(t, srv, http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	list := do(t, srv, http.MethodGet, "/api/products?category_id=2", "", "")
	assert.True(t, catalog.AcceptSchema(catalog.CollectionSchema)(list).Success)
	id, ok := delivery.ProductIDExtractor(list.Body)
	require.True(t, ok)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/products/"+id, "", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/products/product_999", "", "").StatusCode)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/orders", "", "").StatusCode)
	orders := do(t, srv, http.MethodGet, "/api/orders", "", token)
	assert.True(t, catalog.AcceptJSON()(orders).Success)

	signup := `{"name":"Test User","email":"new@example.com","password":"password123","phone":"+1234567890123"}`
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/auth/signup", signup, "").StatusCode)
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/auth/signup", signup, "").StatusCode)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/delivery/tracking/order_12", "", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/delivery/tracking/order_900", "", "").StatusCode)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/categories", "", "").StatusCode, "outside the prefix")
	assert.Equal(t, 2, api.Hits("/auth/login"))

	api.FailWith(http.StatusServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/categories", "", "").StatusCode)
}

// A full run against the stub exercises every action, logged in and not,
// without a single failure.
func TestAPI_FullRun(t *testing.T) {
	api := deliverytest.NewAPI("")
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	always := 1.0
	spawnRate := 100.0
	cfg := &config.TestConfig{
		Name:     "stub",
		Settings: config.Settings{Host: srv.URL, APIPrefix: "/"},
		Users: config.UsersConfig{
			Count:     5,
			SpawnRate: &spawnRate,
			Duration:  config.Duration(500 * time.Millisecond),
		},
		Wait: config.WaitConfig{Min: config.DurationOf(time.Millisecond), Max: config.DurationOf(2 * time.Millisecond)},
		Auth: config.AuthConfig{Probability: &always},
	}

	eng, err := engine.NewEngine(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed, "thresholds: %+v", result.Thresholds)
	assert.Empty(t, result.Failures)
	assert.Zero(t, result.Metrics.SkippedActions, "every user is logged in")
	assert.GreaterOrEqual(t, api.TotalHits(), int(result.Metrics.TotalRequests), "requests torn down at shutdown reach the server unrecorded")
	assert.Equal(t, 5, api.Hits("/auth/login"))
}
