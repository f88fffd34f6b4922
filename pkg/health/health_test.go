package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func passingCheck() CheckFunc {
	return func(context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(context.Context) error {
		return errors.New(msg)
	}
}

func serve(t *testing.T, handler http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("a", time.Second, passingCheck())
	h.AddLivenessCheck("b", time.Second, passingCheck())

	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)

	h.AddLivenessCheck("db", time.Second, failingCheck("connection refused"))
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint_RequiresFlag(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passingCheck())

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.SetReady(false)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReady_ReportsEveryFailure(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("postgres", time.Second, failingCheck("pg down"))
	h.AddReadinessCheck("redis", time.Second, failingCheck("redis down"))
	h.AddReadinessCheck("mongo", time.Second, passingCheck())

	assert.Equal(t, map[string]string{
		"postgres": "pg down",
		"redis":    "redis down",
	}, h.Ready(context.Background()))
}

func TestReady_CheckTimeout(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	failures := h.Ready(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), failures["slow"])
}

func TestReady_ChecksRunConcurrently(t *testing.T) {
	h := New()
	h.SetReady(true)

	var running atomic.Int32
	release := make(chan struct{})
	blocking := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.AddReadinessCheck("a", time.Second, blocking)
	h.AddReadinessCheck("b", time.Second, blocking)

	assert.Empty(t, h.Ready(context.Background()))
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
