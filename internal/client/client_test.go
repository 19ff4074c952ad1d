package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/cbserver/internal/apirouter"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbwebhook"
	"github.com/hookdeck/cbserver/internal/client"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receiver struct {
	mu       sync.Mutex
	messages []string
	server   *httptest.Server
}

func newReceiver(t *testing.T) *receiver {
	r := &receiver{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload callback.Payload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.messages = append(r.messages, payload.Message)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *receiver) count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m == message {
			n++
		}
	}
	return n
}

func (r *receiver) ref() callback.Ref {
	return callback.Ref{
		Type:   cbwebhook.ProviderType,
		Config: map[string]string{"url": r.server.URL},
	}
}

func newServer(t *testing.T, apiKey string) (*httptest.Server, *dispatcher.Dispatcher) {
	t.Helper()

	logger := testutil.CreateTestLogger(t)
	registry := callback.NewRegistry()
	require.NoError(t, registry.RegisterProvider(cbwebhook.New()))

	d, err := dispatcher.New(logger, dispatcher.WithPeriodUnit(20*time.Millisecond))
	require.NoError(t, err)

	router := apirouter.NewRouter(apirouter.RouterConfig{
		APIKey:          apiKey,
		GinMode:         gin.TestMode,
		ShutdownTimeout: 5 * time.Second,
	}, logger, d, registry)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, d
}

func TestClient_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recv := newReceiver(t)
	server, d := newServer(t, "secret")
	c := client.New(server.URL, client.WithAPIKey("secret"))

	require.NoError(t, c.Deliver(ctx, recv.ref(), "once"))
	assert.Equal(t, 1, recv.count("once"))

	require.NoError(t, c.Register(ctx, recv.ref(), "every-1", 1))
	require.NoError(t, c.Register(ctx, recv.ref(), "every-2", 2))

	assert.Eventually(t, func() bool {
		return recv.count("every-1") >= 2 && recv.count("every-2") >= 1
	}, 3*time.Second, 10*time.Millisecond)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.LiveWorkers)
	assert.False(t, stats.Stopping)

	require.NoError(t, c.Shutdown(ctx))
	select {
	case <-d.Released():
	default:
		t.Fatal("shutdown returned before release")
	}

	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.LiveWorkers)
	assert.True(t, stats.Stopping)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server, _ := newServer(t, "secret")

	t.Run("unauthorized", func(t *testing.T) {
		err := client.New(server.URL).Shutdown(ctx)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("validation", func(t *testing.T) {
		c := client.New(server.URL, client.WithAPIKey("secret"))
		err := c.Register(ctx, callback.Ref{Type: cbwebhook.ProviderType}, "m", 1)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Contains(t, apiErr.Data, "callback.config.url is required")
		assert.Contains(t, apiErr.Error(), "callback.config.url is required")
	})

	t.Run("bad period", func(t *testing.T) {
		c := client.New(server.URL, client.WithAPIKey("secret"))
		err := c.Register(ctx, callback.Ref{Type: cbwebhook.ProviderType, Config: map[string]string{"url": "http://localhost:1"}}, "m", 0)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	})
}

func TestClient_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server, _ := newServer(t, "")
	registry := naming.NewMemoryRegistry()

	_, err := client.Resolve(ctx, registry, naming.DefaultName)
	assert.ErrorIs(t, err, naming.ErrNotFound)

	name, err := naming.ParseName(naming.DefaultName)
	require.NoError(t, err)
	require.NoError(t, registry.Publish(ctx, name, server.URL+"/"))

	c, err := client.Resolve(ctx, registry, naming.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, server.URL, c.BaseURL())

	_, err = client.Resolve(ctx, registry, "")
	assert.ErrorIs(t, err, naming.ErrInvalidName)
}

func TestClient_WaitReady(t *testing.T) {
	t.Parallel()

	calls := 0
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.New(server.URL).WaitReady(ctx, 10*time.Millisecond))
}
