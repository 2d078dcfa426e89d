package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/blood-request/latest-status",
		"/api/matches/donor",
		"/api/users/me",
		"/api/appointments",
	} {
		rec := ts.do(t, http.MethodGet, path, 0, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantBody:   "OK",
		},
		{
			name: "all healthy",
			checks: map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   "OK",
		},
		{
			name: "redis down",
			checks: map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "redis unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(cfg *RouterConfig) { cfg.Health = tt.checks })

			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/blood-request/latest-status", 1, nil)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bloodlink_http_requests_total{method="GET",route="/api/blood-request/latest-status",status="200"}`)
}
