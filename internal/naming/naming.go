// Package naming publishes and resolves server addresses under well-known
// names.
package naming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hookdeck/cbserver/internal/redis"
)

var (
	// ErrUnavailable wraps any failure to reach the name service.
	ErrUnavailable = errors.New("name service unavailable")
	ErrNotFound    = errors.New("name not bound")
)

// Registry binds names to addresses. Publish has rebind semantics: an existing
// binding is overwritten.
type Registry interface {
	Publish(ctx context.Context, name Name, address string) error
	Resolve(ctx context.Context, name Name) (string, error)
	Unpublish(ctx context.Context, name Name) error
}

const keyPrefix = "cbserver:naming:"

type redisRegistry struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ Registry = (*redisRegistry)(nil)

// NewRedisRegistry stores bindings in Redis. A positive ttl makes bindings
// expire unless they are published again.
func NewRedisRegistry(client redis.Cmdable, ttl time.Duration) Registry {
	return &redisRegistry{client: client, ttl: ttl}
}

func key(name Name) string {
	return keyPrefix + name.String()
}

func (r *redisRegistry) Publish(ctx context.Context, name Name, address string) error {
	if err := r.client.Set(ctx, key(name), address, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrUnavailable, name, err)
	}
	return nil
}

func (r *redisRegistry) Resolve(ctx context.Context, name Name) (string, error) {
	address, err := r.client.Get(ctx, key(name)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", ErrUnavailable, name, err)
	}
	return address, nil
}

func (r *redisRegistry) Unpublish(ctx context.Context, name Name) error {
	if err := r.client.Del(ctx, key(name)).Err(); err != nil {
		return fmt.Errorf("%w: unpublish %s: %w", ErrUnavailable, name, err)
	}
	return nil
}

type memoryRegistry struct {
	mu       sync.RWMutex
	bindings map[string]string
}

var _ Registry = (*memoryRegistry)(nil)

// NewMemoryRegistry keeps bindings in process. Used when naming is disabled
// and in tests.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{bindings: make(map[string]string)}
}

func (r *memoryRegistry) Publish(ctx context.Context, name Name, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[name.String()] = address
	return nil
}

func (r *memoryRegistry) Resolve(ctx context.Context, name Name) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	address, ok := r.bindings[name.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return address, nil
}

func (r *memoryRegistry) Unpublish(ctx context.Context, name Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, name.String())
	return nil
}
