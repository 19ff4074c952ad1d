package apirouter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/cbserver/internal/apirouter"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "api_key"

type recordingProvider struct {
	*callback.BaseProvider

	mu       sync.Mutex
	messages []string
	closed   int
	fail     bool
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{
		BaseProvider: callback.NewBaseProvider("test", callback.WithRequiredConfig("target")),
	}
}

func (p *recordingProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	if err := p.Validate(ctx, ref); err != nil {
		return nil, err
	}
	return &recordingCallback{provider: p}, nil
}

func (p *recordingProvider) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

func (p *recordingProvider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type recordingCallback struct {
	provider *recordingProvider
}

func (c *recordingCallback) Deliver(ctx context.Context, message string) error {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	if c.provider.fail {
		return callback.NewErrDeliveryAttempt(errors.New("gone"), "test", "connection_refused")
	}
	c.provider.messages = append(c.provider.messages, message)
	return nil
}

func (c *recordingCallback) Close() error {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	c.provider.closed++
	return nil
}

type harness struct {
	router     http.Handler
	dispatcher *dispatcher.Dispatcher
	provider   *recordingProvider
}

func setupHarness(t *testing.T, opts ...dispatcher.Option) *harness {
	t.Helper()

	logger := testutil.CreateTestLogger(t)
	registry := callback.NewRegistry()
	provider := newRecordingProvider()
	require.NoError(t, registry.RegisterProvider(provider))

	d, err := dispatcher.New(logger, append([]dispatcher.Option{
		dispatcher.WithPeriodUnit(20 * time.Millisecond),
	}, opts...)...)
	require.NoError(t, err)

	router := apirouter.NewRouter(apirouter.RouterConfig{
		ServiceName:     "cbserver-test",
		APIKey:          testAPIKey,
		GinMode:         gin.TestMode,
		ShutdownTimeout: 5 * time.Second,
	}, logger, d, registry)

	return &harness{router: router, dispatcher: d, provider: provider}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func testRef() map[string]interface{} {
	return map[string]interface{}{
		"type":   "test",
		"config": map[string]string{"target": "peer"},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()

	h := setupHarness(t)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("not bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", "Basic "+testAPIKey)
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/api/v1/stats", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouter_NoAPIKey(t *testing.T) {
	t.Parallel()

	logger := testutil.CreateTestLogger(t)
	d, err := dispatcher.New(logger)
	require.NoError(t, err)
	router := apirouter.NewRouter(apirouter.RouterConfig{GinMode: gin.TestMode}, logger, d, callback.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Deliver(t *testing.T) {
	t.Parallel()

	t.Run("delivers and closes the callback", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"callback": testRef(),
			"message":  "hello",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decode(t, w)["success"])
		assert.Equal(t, []string{"hello"}, h.provider.Messages())
		assert.Equal(t, 1, h.provider.Closed())
	})

	t.Run("peer failure still succeeds", func(t *testing.T) {
		h := setupHarness(t)
		h.provider.fail = true
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"callback": testRef(),
			"message":  "hello",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, h.provider.Closed())
	})

	t.Run("missing callback", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"message": "hello",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w)["data"], "callback is required")
	})

	t.Run("missing callback type", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"callback": map[string]interface{}{"config": map[string]string{}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w)["data"], "type is required")
	})

	t.Run("unsupported type", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"callback": map[string]interface{}{"type": "carrier-pigeon"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w)["data"], "callback.type is not supported")
	})

	t.Run("missing provider config", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
			"callback": map[string]interface{}{"type": "test"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w)["data"], "callback.config.target is required")
		assert.Empty(t, h.provider.Messages())
	})

	t.Run("invalid json", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/deliver", `{"callback":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid JSON", decode(t, w)["message"])
	})
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	t.Run("starts a periodic worker", func(t *testing.T) {
		h := setupHarness(t)
		w := h.do(t, http.MethodPost, "/api/v1/register", map[string]interface{}{
			"callback":       testRef(),
			"message":        "tick",
			"period_seconds": 1,
		})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		assert.Eventually(t, func() bool {
			return len(h.provider.Messages()) >= 2
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, h.provider.Closed(), "worker owns the callback")

		require.NoError(t, h.dispatcher.Shutdown(context.Background()))
		assert.Equal(t, 1, h.provider.Closed())
	})

	t.Run("period validation", func(t *testing.T) {
		h := setupHarness(t)
		for _, period := range []int{0, -1, 65536} {
			w := h.do(t, http.MethodPost, "/api/v1/register", map[string]interface{}{
				"callback":       testRef(),
				"message":        "tick",
				"period_seconds": period,
			})
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "period %d", period)
		}
		assert.Equal(t, 0, h.dispatcher.Stats().LiveWorkers)
	})

	t.Run("worker limit", func(t *testing.T) {
		h := setupHarness(t, dispatcher.WithMaxWorkers(1))
		body := map[string]interface{}{
			"callback":       testRef(),
			"message":        "tick",
			"period_seconds": 1,
		}
		require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/api/v1/register", body).Code)

		w := h.do(t, http.MethodPost, "/api/v1/register", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, 1, h.provider.Closed(), "rejected callback is closed")

		require.NoError(t, h.dispatcher.Shutdown(context.Background()))
	})

	t.Run("after shutdown", func(t *testing.T) {
		h := setupHarness(t)
		require.NoError(t, h.dispatcher.Shutdown(context.Background()))

		w := h.do(t, http.MethodPost, "/api/v1/register", map[string]interface{}{
			"callback":       testRef(),
			"message":        "tick",
			"period_seconds": 1,
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, 1, h.provider.Closed())
	})
}

func TestRouter_Shutdown(t *testing.T) {
	t.Parallel()

	h := setupHarness(t)
	for i := 0; i < 3; i++ {
		w := h.do(t, http.MethodPost, "/api/v1/register", map[string]interface{}{
			"callback":       testRef(),
			"message":        "tick",
			"period_seconds": i + 1,
		})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	assert.Equal(t, 3, h.dispatcher.Stats().LiveWorkers)

	w := h.do(t, http.MethodPost, "/api/v1/shutdown", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	select {
	case <-h.dispatcher.Released():
	default:
		t.Fatal("endpoint not released after shutdown returned")
	}
	assert.Equal(t, 3, h.provider.Closed())

	stats := decode(t, h.do(t, http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, float64(0), stats["live_workers"])
	assert.Equal(t, true, stats["stopping"])

	// Repeated shutdown is a no-op.
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/shutdown", nil).Code)
}

func TestRouter_Providers(t *testing.T) {
	t.Parallel()

	h := setupHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"test"}, decode(t, w)["providers"])
}
