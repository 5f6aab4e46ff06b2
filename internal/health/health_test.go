package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAggregation(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewCheckFunc("redis", true, func(ctx context.Context) error { return nil }))
	m.Register(NewCheckFunc("database", false, func(ctx context.Context) error { return nil }))

	report := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Components, 2)
	assert.True(t, m.Ready(context.Background()))
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewCheckFunc("redis", true, func(ctx context.Context) error { return nil }))
	m.Register(NewCheckFunc("database", false, func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	report := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, m.Ready(context.Background()), "degraded still serves traffic")
}

func TestCriticalFailureBlocksReadiness(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewCheckFunc("redis", true, func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, m.Ready(context.Background()))
}

func TestServiceChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewServiceChecker("llm_service", srv.URL, false)
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
}

func TestHealthEndpoints(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewCheckFunc("redis", true, func(ctx context.Context) error { return nil }))

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
