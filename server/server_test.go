package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khekrn/gwpool"
)

func newTestServer(t *testing.T) (*Server, *gwpool.ThreadPool) {
	t.Helper()
	reg := prometheus.NewRegistry()
	pool := gwpool.NewThreadPool(gwpool.WithMetrics(reg, "srv"))
	require.True(t, pool.Initialize(2))
	t.Cleanup(func() { pool.Terminate(false) })
	return New(":0", pool, reg, nil), pool
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Running)
	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, 0, got.Finished)
}

func TestStatusMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var got ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Contains(t, got.Error, "Use GET")
}

func TestMetrics(t *testing.T) {
	s, pool := newTestServer(t)
	pool.Enqueue(gwpool.NewFunc(func() error { return nil }, nil))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "srv_threadpool_enqueued_total 1"), body)
	assert.Contains(t, body, "srv_threadpool_live_workers")
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/metrics")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
