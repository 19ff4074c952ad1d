package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hookdeck/cbserver/internal/logging"
	"github.com/hookdeck/cbserver/internal/worker"
	"go.uber.org/zap"
)

const defaultHTTPShutdownTimeout = 10 * time.Second

// HTTPServerWorker serves the API until its context is cancelled.
type HTTPServerWorker struct {
	server          *http.Server
	listener        net.Listener
	logger          *logging.Logger
	shutdownTimeout time.Duration
}

var _ worker.Worker = (*HTTPServerWorker)(nil)

// NewHTTPServerWorker binds server.Addr immediately so that a port conflict
// fails the build rather than a running worker.
func NewHTTPServerWorker(server *http.Server, logger *logging.Logger) (*HTTPServerWorker, error) {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	return &HTTPServerWorker{
		server:          server,
		listener:        listener,
		logger:          logger,
		shutdownTimeout: defaultHTTPShutdownTimeout,
	}, nil
}

func (w *HTTPServerWorker) Name() string {
	return "http-server"
}

// Addr is the bound address, useful when server.Addr requested port 0.
func (w *HTTPServerWorker) Addr() string {
	return w.listener.Addr().String()
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)
	logger.Info("http server listening", zap.String("addr", w.Addr()))

	errChan := make(chan error, 1)
	go func() {
		if err := w.server.Serve(w.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		if err := w.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", zap.Error(err))
			return err
		}
		logger.Info("http server shut down")
		return nil

	case err := <-errChan:
		logger.Error("http server error", zap.Error(err))
		return err
	}
}
