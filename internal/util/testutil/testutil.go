package testutil

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hookdeck/cbserver/internal/logging"
	internalredis "github.com/hookdeck/cbserver/internal/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
}

func CreateTestRedisConfig(t *testing.T) *internalredis.RedisConfig {
	mr := miniredis.RunT(t)

	port, _ := strconv.Atoi(mr.Port())

	return &internalredis.RedisConfig{
		Host: mr.Host(),
		Port: port,
	}
}

// CreateTestRedisClient returns a client backed by miniredis together with
// the server so tests can fast-forward TTLs.
func CreateTestRedisClient(t *testing.T) (internalredis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})
	return client, mr
}

func CreateTestLogger(t *testing.T) *logging.Logger {
	return logging.NewFromZap(zaptest.NewLogger(t), zap.InfoLevel)
}

// CreateObservedLogger returns a logger whose entries can be inspected.
func CreateObservedLogger(t *testing.T) (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logging.NewFromZap(zap.New(core), zap.DebugLevel), logs
}

func RandomString(length int) string {
	b := make([]byte, length+2)
	rand.Read(b)
	return fmt.Sprintf("%x", b)[2 : length+2]
}
