package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	r "github.com/redis/go-redis/v9"
)

// Nil is returned by GET on a missing key.
const Nil = r.Nil

type Cmdable = r.Cmdable

type Client interface {
	Cmdable
	Close() error
}

// New connects to Redis, verifies the connection with PING and instruments
// the client with OpenTelemetry tracing.
func New(ctx context.Context, config *RedisConfig) (Client, error) {
	var tlsConfig *tls.Config
	if config.TLSEnabled {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.ClusterEnabled {
		// Database selection is not supported in cluster mode.
		client := r.NewClusterClient(&r.ClusterOptions{
			Addrs:     []string{config.Addr()},
			Username:  config.Username,
			Password:  config.Password,
			TLSConfig: tlsConfig,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis cluster connection failed: %w", err)
		}
		if err := redisotel.InstrumentTracing(client); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}

	client := r.NewClient(&r.Options{
		Addr:      config.Addr(),
		Username:  config.Username,
		Password:  config.Password,
		DB:        config.Database,
		TLSConfig: tlsConfig,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if err := redisotel.InstrumentTracing(client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
