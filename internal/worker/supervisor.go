package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger is the subset of *logging.Logger the supervisor needs.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// WorkerSupervisor runs the server's workers side by side. A failing worker
// is marked in the health tracker and does not stop the others.
type WorkerSupervisor struct {
	workers         []Worker
	names           map[string]struct{}
	health          *HealthTracker
	logger          Logger
	shutdownTimeout time.Duration
}

type SupervisorOption func(*WorkerSupervisor)

// WithShutdownTimeout bounds how long Run waits for workers after ctx is
// cancelled. Zero waits indefinitely.
func WithShutdownTimeout(timeout time.Duration) SupervisorOption {
	return func(s *WorkerSupervisor) {
		s.shutdownTimeout = timeout
	}
}

func NewWorkerSupervisor(logger Logger, opts ...SupervisorOption) *WorkerSupervisor {
	s := &WorkerSupervisor{
		names:  make(map[string]struct{}),
		health: NewHealthTracker(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a worker. Workers start in registration order. Registering
// two workers with the same name panics.
func (s *WorkerSupervisor) Register(w Worker) {
	if _, exists := s.names[w.Name()]; exists {
		panic(fmt.Sprintf("worker %s already registered", w.Name()))
	}
	s.names[w.Name()] = struct{}{}
	s.workers = append(s.workers, w)
	s.health.MarkStarting(w.Name())
	s.logger.Debug("worker registered", zap.String("worker", w.Name()))
}

func (s *WorkerSupervisor) GetHealthTracker() *HealthTracker {
	return s.health
}

// Run starts every worker and blocks until ctx is cancelled or all workers
// have returned. After cancellation it waits for the workers, bounded by the
// shutdown timeout, and returns an error only if that bound is exceeded.
func (s *WorkerSupervisor) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		s.logger.Warn("no workers registered")
		return nil
	}

	s.logger.Info("starting workers", zap.Int("count", len(s.workers)))

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			s.runWorker(ctx, w)
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all workers have exited")
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("context cancelled, waiting for workers")
	if s.shutdownTimeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("all workers shut down gracefully")
		return nil
	case <-timer.C:
		s.logger.Warn("shutdown timeout exceeded, some workers may still be running",
			zap.Duration("timeout", s.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded (%v)", s.shutdownTimeout)
	}
}

func (s *WorkerSupervisor) runWorker(ctx context.Context, w Worker) {
	name := w.Name()
	s.logger.Info("worker starting", zap.String("worker", name))
	s.health.MarkHealthy(name)

	err := w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("worker failed", zap.String("worker", name), zap.Error(err))
		s.health.MarkFailed(name)
		return
	}
	s.logger.Info("worker stopped", zap.String("worker", name))
}
