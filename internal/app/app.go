package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hookdeck/cbserver/internal/config"
	"github.com/hookdeck/cbserver/internal/idgen"
	"github.com/hookdeck/cbserver/internal/logging"
	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/otel"
	"github.com/hookdeck/cbserver/internal/services"
	"github.com/hookdeck/cbserver/internal/version"
	"go.uber.org/zap"
)

type App struct {
	config         *config.Config
	logger         *logging.Logger
	namingRegistry naming.Registry
	signals        <-chan os.Signal
}

type Option func(*App)

// WithLogger replaces the logger built from the config.
func WithLogger(logger *logging.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

func WithNamingRegistry(registry naming.Registry) Option {
	return func(a *App) {
		a.namingRegistry = registry
	}
}

// WithSignals replaces SIGINT/SIGTERM as the trigger for a drain.
func WithSignals(signals <-chan os.Signal) Option {
	return func(a *App) {
		a.signals = signals
	}
}

func New(cfg *config.Config, opts ...Option) *App {
	a := &App{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Run(ctx context.Context) error {
	return a.run(ctx)
}

func (a *App) run(mainContext context.Context) (err error) {
	cfg := a.config

	logger := a.logger
	if logger == nil {
		logger, err = logging.NewLogger(
			logging.WithLogLevel(cfg.LogLevel),
			logging.WithEncoding(cfg.LogFormat),
		)
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	logger.Info("starting cbserver",
		zap.String("version", version.Version()),
		zap.String("config_path", cfg.ConfigFilePath()))
	logger.Debug("configuration", cfg.LogConfigurationSummary()...)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: version.Version(),
		}); err != nil {
			logger.Error("sentry initialization failed", zap.Error(err))
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	logger.Debug("configuring ID generators",
		zap.String("type", cfg.IDGen.Type),
		zap.String("worker_prefix", cfg.IDGen.WorkerPrefix),
		zap.String("delivery_prefix", cfg.IDGen.DeliveryPrefix))
	if err := idgen.Configure(cfg.IDGen.ToConfig()); err != nil {
		logger.Error("failed to configure ID generators", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(mainContext)
	defer cancel()

	if otelConfig := cfg.OpenTelemetry.ToOTELConfig(); otelConfig != nil {
		otelShutdown, otelErr := otel.SetupOTelSDK(ctx, otelConfig)
		if otelErr != nil {
			return otelErr
		}
		defer func() {
			err = errors.Join(err, otelShutdown(context.Background()))
		}()
	}

	logger.Debug("building services")
	var builderOpts []services.BuilderOption
	if a.namingRegistry != nil {
		builderOpts = append(builderOpts, services.WithNamingRegistry(a.namingRegistry))
	}
	builder := services.NewServiceBuilder(ctx, cfg, logger, builderOpts...)
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		builder.Cleanup(cleanupCtx)
	}()

	if err := builder.BuildWorkers(); err != nil {
		logger.Error("failed to build workers", zap.Error(err))
		return err
	}
	supervisor, dispatcher, err := builder.Build()
	if err != nil {
		return err
	}

	logger.Info("server ready",
		zap.String("name", cfg.Naming.Name),
		zap.String("endpoint", builder.Endpoint()))

	signals := a.signals
	if signals == nil {
		termChan := make(chan os.Signal, 1)
		signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(termChan)
		signals = termChan
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	drain := func(reason string) {
		logger.Info(reason, zap.Int("live_workers", dispatcher.Stats().LiveWorkers))
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownTimeout())
		defer drainCancel()
		if err := dispatcher.Shutdown(drainCtx); err != nil {
			logger.Warn("workers still running after shutdown timeout",
				zap.Int("live_workers", dispatcher.Stats().LiveWorkers),
				zap.Error(err))
		}
	}

	var exitErr error
	select {
	case <-dispatcher.Released():
		logger.Info("endpoint released")
	case <-signals:
		drain("shutdown signal received")
	case <-mainContext.Done():
		drain("context cancelled")
	case err := <-errChan:
		if err != nil {
			logger.Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
		errChan = nil
	}

	cancel()
	if errChan != nil {
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	}

	logger.Info("returned from serve loop")
	return exitErr
}
