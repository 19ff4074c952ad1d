// Package dispatcher delivers messages to remote callbacks, either once or
// periodically from background workers, and drains those workers on shutdown.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/drain"
	"github.com/hookdeck/cbserver/internal/idgen"
	"github.com/hookdeck/cbserver/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Stats struct {
	LiveWorkers int  `json:"live_workers"`
	Stopping    bool `json:"stopping"`
}

type Dispatcher struct {
	logger  *logging.Logger
	coord   *drain.Coordinator
	workers errgroup.Group
	metrics *dispatcherMetrics

	maxWorkers      int
	deliveryTimeout time.Duration
	periodUnit      time.Duration
	sleep           func(time.Duration)
	meterProvider   metric.MeterProvider

	releaseFn   func()
	releaseOnce sync.Once
	released    chan struct{}
}

type Option func(*Dispatcher)

// WithMaxWorkers caps the number of concurrently running workers. Zero or a
// negative value means no cap.
func WithMaxWorkers(n int) Option {
	return func(d *Dispatcher) {
		d.maxWorkers = n
	}
}

// WithDeliveryTimeout bounds every single delivery. Zero means no bound.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.deliveryTimeout = timeout
	}
}

// WithPeriodUnit sets the duration of one period unit passed to Register.
// Defaults to one second.
func WithPeriodUnit(unit time.Duration) Option {
	return func(d *Dispatcher) {
		d.periodUnit = unit
	}
}

// WithReleaser registers the function that releases the serving endpoint.
// It runs at most once, after the first completed drain.
func WithReleaser(release func()) Option {
	return func(d *Dispatcher) {
		d.releaseFn = release
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		d.meterProvider = provider
	}
}

func WithCoordinator(coord *drain.Coordinator) Option {
	return func(d *Dispatcher) {
		d.coord = coord
	}
}

func New(logger *logging.Logger, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:     logger,
		periodUnit: time.Second,
		sleep:      time.Sleep,
		released:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.coord == nil {
		d.coord = drain.New()
	}
	if d.meterProvider == nil {
		d.meterProvider = otel.GetMeterProvider()
	}
	if d.maxWorkers > 0 {
		d.workers.SetLimit(d.maxWorkers)
	}

	metrics, err := newDispatcherMetrics(d.meterProvider)
	if err != nil {
		return nil, err
	}
	d.metrics = metrics
	return d, nil
}

// DeliverOnce delivers message to cb synchronously. A failed delivery is
// logged and counted but not returned, and a panic in cb is recovered the
// same way; only a nil callback is an error. The caller keeps ownership of cb.
func (d *Dispatcher) DeliverOnce(ctx context.Context, cb callback.Callback, message string) (err error) {
	if cb == nil {
		return callback.ErrInvalidCallback
	}

	logger := d.logger.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			d.metrics.delivered(ctx, kindOnce, fmt.Errorf("panic: %v", r))
			logger.Warn("single call-back failed", zap.Any("panic", r))
			err = nil
		}
	}()

	logger.Info("doing a single call-back", zap.Int("message_length", len(message)))
	if err := d.deliver(ctx, kindOnce, cb, message); err != nil {
		logger.Warn("single call-back failed", zap.Error(err))
	}
	return nil
}

// Register starts a worker that delivers message to cb every period units
// until shutdown or until a delivery fails. It returns as soon as the worker
// is started. On success the worker owns cb; on error the caller does.
//
// A worker registered after shutdown has begun is still started and exits on
// its first stop check without delivering.
func (d *Dispatcher) Register(ctx context.Context, cb callback.Callback, message string, period int) error {
	if cb == nil {
		return callback.ErrInvalidCallback
	}
	if period <= 0 {
		return ErrInvalidPeriod
	}

	if !d.coord.TryBeginWorker() {
		return ErrDispatcherClosed
	}

	w := &periodicWorker{
		id:      idgen.Worker(),
		cb:      cb,
		message: message,
		period:  time.Duration(period) * d.periodUnit,
		coord:   d.coord,
		deliver: func(ctx context.Context, cb callback.Callback, message string) error {
			return d.deliver(ctx, kindPeriodic, cb, message)
		},
		sleep:  d.sleep,
		onExit: func(*periodicWorker) { d.metrics.workerExited(context.Background()) },
		logger: d.logger,
	}

	d.metrics.workerStarted(ctx)
	if !d.workers.TryGo(func() error {
		w.run()
		return nil
	}) {
		d.metrics.workerExited(ctx)
		d.coord.EndWorker()
		return ErrWorkerLimit
	}

	d.logger.Ctx(ctx).Info("starting a new worker",
		zap.String("worker_id", w.id),
		zap.Duration("period", w.period))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, cb callback.Callback, message string) error {
	if d.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deliveryTimeout)
		defer cancel()
	}
	err := cb.Deliver(ctx, message)
	d.metrics.delivered(ctx, kind, err)
	return err
}

// Shutdown sets the stop flag, waits until every worker has exited and then
// releases the serving endpoint. Concurrent and repeated calls all wait for
// the drain; the endpoint is released once. If ctx ends first its error is
// returned and the endpoint is not released.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.coord.RequestStop() {
		d.logger.Ctx(ctx).Info("being shut down", zap.Int("live_workers", d.coord.Live()))
	}

	for {
		if err := d.coord.AwaitDrain(ctx); err != nil {
			return err
		}
		if d.coord.Seal() {
			break
		}
	}

	// Sealed: no further Go calls can happen, so Wait cannot race with Add.
	d.workers.Wait()

	d.releaseOnce.Do(func() {
		if d.releaseFn != nil {
			d.releaseFn()
		}
		close(d.released)
	})
	return nil
}

// Released returns a channel closed once Shutdown has released the endpoint.
func (d *Dispatcher) Released() <-chan struct{} {
	return d.released
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		LiveWorkers: d.coord.Live(),
		Stopping:    d.coord.IsStopping(),
	}
}
