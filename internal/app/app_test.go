package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/pkg/health"
)

func newTestHandler(t *testing.T, cfg *Config) (http.Handler, *health.Health) {
	t.Helper()
	ctx := context.Background()

	storage, err := OpenStorage(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(ctx) })

	healthSvc := health.New()
	for name, check := range storage.Checks {
		healthSvc.AddReadinessCheck(name, time.Second, check)
	}

	h, err := newHandler(zap.NewNop(), cfg, storage, healthSvc,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return h, healthSvc
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// exerciseCartFlow runs the create, add, view, total and remove sequence
// against a fully wired handler.
func exerciseCartFlow(t *testing.T, h http.Handler) {
	t.Helper()

	w := call(t, h, http.MethodPost, "/products", `{"name":"Waffle","price":6.5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ProductID string `json:"productId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = call(t, h, http.MethodPost, "/cart", `{"productId":"`+created.ProductID+`","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = call(t, h, http.MethodPost, "/cart", `{"productId":"`+created.ProductID+`","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"quantity":5`)

	w = call(t, h, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []struct {
		Quantity  int64   `json:"quantity"`
		LineTotal float64 `json:"lineTotal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, int64(5), items[0].Quantity)
	assert.InDelta(t, 32.5, items[0].LineTotal, 1e-9)

	w = call(t, h, http.MethodGet, "/cart/total", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"total":32.50}`, w.Body.String())

	w = call(t, h, http.MethodDelete, "/cart/"+created.ProductID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, h, http.MethodGet, "/cart/total", "")
	assert.Equal(t, `{"total":0.00}`, w.Body.String())
}

func TestHandler_MemoryBackend(t *testing.T) {
	h, _ := newTestHandler(t, &Config{Backend: BackendMemory, StoreTimeout: time.Second})
	exerciseCartFlow(t, h)
}

func TestHandler_HealthAndMiddleware(t *testing.T) {
	h, healthSvc := newTestHandler(t, &Config{
		Backend:      BackendMemory,
		StoreTimeout: time.Second,
		CORS:         CORSConfig{Origins: []string{"*"}},
	})

	w := call(t, h, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = call(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	healthSvc.SetReady(true)
	w = call(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Origin", "https://ui.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}
