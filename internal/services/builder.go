package services

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/hookdeck/cbserver/internal/apirouter"
	"github.com/hookdeck/cbserver/internal/callback"
	callbackdefault "github.com/hookdeck/cbserver/internal/callback/providers"
	"github.com/hookdeck/cbserver/internal/config"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/logging"
	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/redis"
	"github.com/hookdeck/cbserver/internal/worker"
	"go.uber.org/zap"
)

// ServiceBuilder wires the dispatcher, its HTTP API and the naming binding
// into a worker supervisor.
type ServiceBuilder struct {
	ctx        context.Context
	cfg        *config.Config
	logger     *logging.Logger
	supervisor *worker.WorkerSupervisor

	namingRegistry naming.Registry
	dispatcher     *dispatcher.Dispatcher
	httpWorker     *HTTPServerWorker
	endpoint       string

	cleanupFuncs []func(context.Context, *logging.LoggerWithCtx)
}

type BuilderOption func(*ServiceBuilder)

// WithNamingRegistry overrides the registry derived from the naming config.
func WithNamingRegistry(registry naming.Registry) BuilderOption {
	return func(b *ServiceBuilder) {
		b.namingRegistry = registry
	}
}

func NewServiceBuilder(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...BuilderOption) *ServiceBuilder {
	b := &ServiceBuilder{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		supervisor: worker.NewWorkerSupervisor(logger,
			worker.WithShutdownTimeout(cfg.Dispatcher.ShutdownTimeout()+defaultHTTPShutdownTimeout),
		),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildWorkers creates the dispatcher and registers the HTTP server and
// naming keepalive workers. The endpoint is published before returning; a
// failure to publish is fatal.
func (b *ServiceBuilder) BuildWorkers() error {
	b.logger.Debug("initializing callback provider registry")
	registry := callback.NewRegistry()
	if err := callbackdefault.RegisterDefault(registry, callbackdefault.Config{
		WebhookHeaderPrefix: b.cfg.Webhook.HeaderPrefix,
		WebhookUserAgent:    b.cfg.Webhook.UserAgent,
	}); err != nil {
		b.logger.Error("callback registry setup failed", zap.Error(err))
		return err
	}

	b.logger.Debug("creating dispatcher")
	d, err := dispatcher.New(b.logger,
		dispatcher.WithMaxWorkers(b.cfg.Dispatcher.MaxWorkers),
		dispatcher.WithDeliveryTimeout(b.cfg.Dispatcher.DeliveryTimeout()),
	)
	if err != nil {
		b.logger.Error("dispatcher creation failed", zap.Error(err))
		return err
	}
	b.dispatcher = d

	b.logger.Debug("creating HTTP server")
	router := apirouter.NewRouter(
		apirouter.RouterConfig{
			ServiceName:     b.cfg.OpenTelemetry.ServiceName,
			APIKey:          b.cfg.APIKey,
			GinMode:         b.cfg.GinMode,
			SentryEnabled:   b.cfg.SentryDSN != "",
			ShutdownTimeout: b.cfg.Dispatcher.ShutdownTimeout(),
		},
		b.logger,
		d,
		registry,
	)
	AddHealthRoutes(router, b.supervisor, d)

	httpWorker, err := NewHTTPServerWorker(&http.Server{
		Addr:    fmt.Sprintf(":%d", b.cfg.APIPort),
		Handler: router,
	}, b.logger)
	if err != nil {
		b.logger.Error("http server bind failed", zap.Error(err))
		return err
	}
	b.httpWorker = httpWorker
	b.supervisor.Register(httpWorker)

	if err := b.buildNamingWorker(); err != nil {
		httpWorker.listener.Close()
		return err
	}

	b.logger.Info("service workers built successfully")
	return nil
}

func (b *ServiceBuilder) buildNamingWorker() error {
	name, err := naming.ParseName(b.cfg.Naming.Name)
	if err != nil {
		b.logger.Error("invalid naming name", zap.Error(err))
		return err
	}

	registry := b.namingRegistry
	if registry == nil {
		if b.cfg.Naming.Enabled {
			b.logger.Debug("initializing Redis client for naming")
			redisClient, err := redis.New(b.ctx, b.cfg.Redis.ToConfig())
			if err != nil {
				b.logger.Error("Redis client initialization failed", zap.Error(err))
				return fmt.Errorf("%w: %w", naming.ErrUnavailable, err)
			}
			b.cleanupFuncs = append(b.cleanupFuncs, func(ctx context.Context, logger *logging.LoggerWithCtx) {
				if err := redisClient.Close(); err != nil {
					logger.Error("error closing redis client", zap.Error(err))
				}
			})
			registry = naming.NewRedisRegistry(redisClient, b.cfg.Naming.TTL())
		} else {
			registry = naming.NewMemoryRegistry()
		}
		b.namingRegistry = registry
	}

	b.endpoint = b.cfg.EndpointURL()
	if b.cfg.APIPort == 0 && b.cfg.AdvertisedURL == "" {
		_, port, _ := net.SplitHostPort(b.httpWorker.Addr())
		b.endpoint = "http://localhost:" + port
	}

	binding := naming.NewBinding(registry, name, b.endpoint, b.cfg.Naming.TTL()/2, b.logger)
	if err := binding.Publish(b.ctx); err != nil {
		b.logger.Error("failed to publish endpoint", zap.Error(err))
		return err
	}
	b.supervisor.Register(binding)
	return nil
}

// Build returns the supervisor and the dispatcher it serves.
func (b *ServiceBuilder) Build() (*worker.WorkerSupervisor, *dispatcher.Dispatcher, error) {
	if b.dispatcher == nil {
		return nil, nil, fmt.Errorf("services: BuildWorkers has not been called")
	}
	return b.supervisor, b.dispatcher, nil
}

// Endpoint is the address published under the configured name.
func (b *ServiceBuilder) Endpoint() string {
	return b.endpoint
}

func (b *ServiceBuilder) NamingRegistry() naming.Registry {
	return b.namingRegistry
}

// Cleanup releases resources acquired while building.
func (b *ServiceBuilder) Cleanup(ctx context.Context) {
	logger := b.logger.Ctx(ctx)
	for _, cleanupFunc := range b.cleanupFuncs {
		cleanupFunc(ctx, &logger)
	}
}
