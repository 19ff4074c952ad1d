package cbredis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbredis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisProvider_Validate(t *testing.T) {
	t.Parallel()

	provider := cbredis.New()

	tests := []struct {
		name       string
		config     map[string]string
		wantFields []string
	}{
		{"missing", map[string]string{}, []string{"config.addr", "config.channel"}},
		{"bad addr", map[string]string{"addr": "localhost", "channel": "cb"}, []string{"config.addr"}},
		{"bad database", map[string]string{"addr": "localhost:6379", "channel": "cb", "database": "x"}, []string{"config.database"}},
		{"negative database", map[string]string{"addr": "localhost:6379", "channel": "cb", "database": "-1"}, []string{"config.database"}},
		{"valid", map[string]string{"addr": "localhost:6379", "channel": "cb", "database": "2"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := provider.Validate(context.Background(), &callback.Ref{Type: "redis", Config: tt.config})
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			var validationErr *callback.ErrCallbackValidation
			require.ErrorAs(t, err, &validationErr)
			var fields []string
			for _, d := range validationErr.Errors {
				fields = append(fields, d.Field)
				if d.Field == "config.database" {
					assert.Equal(t, "format", d.Type)
				}
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestRedisProvider_CreateCallbackRejectsBadDatabase(t *testing.T) {
	t.Parallel()

	cb, err := cbredis.New().CreateCallback(context.Background(), &callback.Ref{
		Type:   "redis",
		Config: map[string]string{"addr": "localhost:6379", "channel": "cb", "database": "two"},
	})
	assert.Nil(t, cb)
	var validationErr *callback.ErrCallbackValidation
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []callback.ValidationErrorDetail{{Field: "config.database", Type: "format"}}, validationErr.Errors)
}

func TestRedisCallback_Deliver(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()

	ctx := context.Background()
	sub := subscriber.Subscribe(ctx, "callbacks")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	cb, err := cbredis.New().CreateCallback(ctx, &callback.Ref{
		Type:   "redis",
		Config: map[string]string{"addr": mr.Addr(), "channel": "callbacks"},
	})
	require.NoError(t, err)
	defer cb.Close()

	require.NoError(t, cb.Deliver(ctx, "hello"))

	select {
	case msg := <-sub.Channel():
		var payload callback.Payload
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		assert.Equal(t, "hello", payload.Message)
		assert.NotEmpty(t, payload.DeliveryID)
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestRedisCallback_NoSubscribers(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cb, err := cbredis.New().CreateCallback(context.Background(), &callback.Ref{
		Type:   "redis",
		Config: map[string]string{"addr": mr.Addr(), "channel": "nobody"},
	})
	require.NoError(t, err)
	defer cb.Close()

	err = cb.Deliver(context.Background(), "hello")
	var attempt *callback.ErrDeliveryAttempt
	require.ErrorAs(t, err, &attempt)
	assert.Equal(t, "no_subscribers", attempt.Code)
	assert.ErrorIs(t, err, cbredis.ErrNoSubscribers)
}

func TestRedisCallback_ServerGone(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cb, err := cbredis.New().CreateCallback(context.Background(), &callback.Ref{
		Type:   "redis",
		Config: map[string]string{"addr": addr, "channel": "cb"},
	})
	require.NoError(t, err)
	defer cb.Close()

	err = cb.Deliver(context.Background(), "hello")
	var attempt *callback.ErrDeliveryAttempt
	require.ErrorAs(t, err, &attempt)
	assert.Equal(t, "connection_refused", attempt.Code)
}

func TestClassifyRedisError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", cbredis.ClassifyRedisError(nil))
	assert.Equal(t, "timeout", cbredis.ClassifyRedisError(context.DeadlineExceeded))
	assert.Equal(t, "auth_failed", cbredis.ClassifyRedisError(errors.New("WRONGPASS invalid username-password pair")))
	assert.Equal(t, "redis_error", cbredis.ClassifyRedisError(errors.New("boom")))
}
