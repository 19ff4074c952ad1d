package cbredis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/redis/go-redis/v9"
)

const ProviderType = "redis"

// RedisProvider publishes each message on a Redis pub/sub channel.
//
// Ref.Config:      addr (host:port, required), channel (required), database
// Ref.Credentials: username, password
type RedisProvider struct {
	*callback.BaseProvider
}

var _ callback.Provider = (*RedisProvider)(nil)

func New() *RedisProvider {
	return &RedisProvider{
		BaseProvider: callback.NewBaseProvider(ProviderType,
			callback.WithRequiredConfig("addr", "channel"),
		),
	}
}

func (p *RedisProvider) Validate(ctx context.Context, ref *callback.Ref) error {
	if err := p.BaseProvider.Validate(ctx, ref); err != nil {
		return err
	}

	var details []callback.ValidationErrorDetail
	if _, _, err := net.SplitHostPort(ref.Config["addr"]); err != nil {
		details = append(details, callback.ValidationErrorDetail{Field: "config.addr", Type: "format"})
	}
	if _, err := parseDatabase(ref.Config["database"]); err != nil {
		details = append(details, callback.ValidationErrorDetail{Field: "config.database", Type: "format"})
	}
	if len(details) > 0 {
		return callback.NewErrCallbackValidation(details)
	}
	return nil
}

func (p *RedisProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	if err := p.Validate(ctx, ref); err != nil {
		return nil, err
	}

	db, err := parseDatabase(ref.Config["database"])
	if err != nil {
		return nil, callback.NewErrCallbackValidation([]callback.ValidationErrorDetail{
			{Field: "config.database", Type: "format"},
		})
	}

	return &RedisCallback{
		BaseCallback: callback.NewBaseCallback(),
		channel:      ref.Config["channel"],
		options: &redis.Options{
			Addr:     ref.Config["addr"],
			Username: ref.Credentials["username"],
			Password: ref.Credentials["password"],
			DB:       db,
		},
	}, nil
}

// parseDatabase reads an optional non-negative database index. Empty means 0.
func parseDatabase(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative database %d", n)
	}
	return n, nil
}

// RedisCallback owns one client, created on first delivery.
type RedisCallback struct {
	*callback.BaseCallback
	channel string
	options *redis.Options

	mu     sync.Mutex
	client *redis.Client
}

func (c *RedisCallback) getClient() *redis.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = redis.NewClient(c.options)
	}
	return c.client
}

func (c *RedisCallback) Deliver(ctx context.Context, message string) error {
	if err := c.BaseCallback.StartDeliver(); err != nil {
		return err
	}
	defer c.BaseCallback.FinishDeliver()

	body, err := callback.NewPayload(message, time.Now()).Marshal()
	if err != nil {
		return err
	}

	// PUBLISH succeeds with zero receivers; a channel nobody listens on means
	// the peer is gone.
	receivers, err := c.getClient().Publish(ctx, c.channel, body).Result()
	if err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifyRedisError(err))
	}
	if receivers == 0 {
		return callback.NewErrDeliveryAttempt(ErrNoSubscribers, ProviderType, "no_subscribers")
	}
	return nil
}

func (c *RedisCallback) Close() error {
	c.BaseCallback.StartClose()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var ErrNoSubscribers = errors.New("no subscribers on channel")

func ClassifyRedisError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "NOAUTH"), strings.Contains(errStr, "WRONGPASS"):
		return "auth_failed"
	default:
		return "redis_error"
	}
}
