package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbwebhook"
	"github.com/hookdeck/cbserver/internal/client"
	"github.com/hookdeck/cbserver/internal/logging"
	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/redis"
	"github.com/hookdeck/cbserver/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "cbclient",
		Usage:   "Demo client: one call-back, two periodic call-backs, then shutdown",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server base URL; skips the name lookup",
				Sources: cli.EnvVars("CBSERVER_URL"),
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name the server is published under",
				Value: naming.DefaultName,
			},
			&cli.StringFlag{
				Name:    "redis-host",
				Value:   "127.0.0.1",
				Sources: cli.EnvVars("REDIS_HOST"),
			},
			&cli.IntFlag{
				Name:    "redis-port",
				Value:   6379,
				Sources: cli.EnvVars("REDIS_PORT"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Sources: cli.EnvVars("API_KEY"),
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address of the local call-back receiver",
				Value: "127.0.0.1:0",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Shut the server down after this long instead of waiting for ENTER",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, c *cli.Command) error {
	logger, err := logging.NewLogger(logging.WithEncoding("console"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cbClient, err := resolveClient(ctx, c)
	if err != nil {
		return err
	}
	logger.Info("resolved server", zap.String("url", cbClient.BaseURL()))

	receiverURL, stopReceiver, err := startReceiver(c.String("listen"), logger)
	if err != nil {
		return err
	}
	defer stopReceiver()

	ref := callback.Ref{
		Type:   cbwebhook.ProviderType,
		Config: map[string]string{"url": receiverURL},
	}

	logger.Info("executing one-time call-back")
	if err := cbClient.Deliver(ctx, ref, "Hello! This is a test message."); err != nil {
		return err
	}

	logger.Info("registering call-back every 2 seconds")
	if err := cbClient.Register(ctx, ref, "I'm the 2 seconds callback.", 2); err != nil {
		return err
	}
	logger.Info("registering call-back every 3 seconds")
	if err := cbClient.Register(ctx, ref, "This is another message (3 seconds).", 3); err != nil {
		return err
	}

	waitForStop(c.Duration("duration"))

	logger.Info("shutting down the server")
	if err := cbClient.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server shut down")
	return nil
}

func resolveClient(ctx context.Context, c *cli.Command) (*client.Client, error) {
	opts := []client.Option{client.WithAPIKey(c.String("api-key"))}
	if serverURL := c.String("server-url"); serverURL != "" {
		return client.New(serverURL, opts...), nil
	}

	redisClient, err := redis.New(ctx, &redis.RedisConfig{
		Host:     c.String("redis-host"),
		Port:     int(c.Int("redis-port")),
		Password: c.String("redis-password"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", naming.ErrUnavailable, err)
	}
	defer redisClient.Close()

	return client.Resolve(ctx, naming.NewRedisRegistry(redisClient, 0), c.String("name"), opts...)
}

func startReceiver(addr string, logger *logging.Logger) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		var payload callback.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		logger.Info("call-back received", zap.String("message", payload.Message))
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("receiver failed", zap.Error(err))
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	return "http://" + listener.Addr().String() + "/callback", stop, nil
}

func waitForStop(d time.Duration) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	if d > 0 {
		select {
		case <-time.After(d):
		case <-sig:
		}
		return
	}

	fmt.Println("Press [ENTER] to shut down the server.")
	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()
	select {
	case <-enter:
	case <-sig:
	}
}
