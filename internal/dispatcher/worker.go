package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/drain"
	"github.com/hookdeck/cbserver/internal/logging"
	"go.uber.org/zap"
)

type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerStopped
	WorkerFailed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	case WorkerFailed:
		return "failed"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// periodicWorker delivers one message to one callback every period until the
// coordinator is stopping or a delivery fails. It owns cb and closes it on exit.
type periodicWorker struct {
	id      string
	cb      callback.Callback
	message string
	period  time.Duration

	coord   *drain.Coordinator
	deliver func(ctx context.Context, cb callback.Callback, message string) error
	sleep   func(time.Duration)
	onExit  func(w *periodicWorker)
	logger  *logging.Logger

	state atomic.Int32
}

func (w *periodicWorker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// run is the worker body. The caller must have begun the worker on the
// coordinator; run ends it exactly once on every exit path. The sleep is not
// interrupted by a stop request, so a worker may take up to one period plus
// one delivery to observe it.
func (w *periodicWorker) run() {
	w.state.Store(int32(WorkerRunning))

	defer w.coord.EndWorker()
	defer func() {
		if r := recover(); r != nil {
			w.state.Store(int32(WorkerFailed))
			w.logger.Error("worker panicked",
				zap.String("worker_id", w.id),
				zap.Any("panic", r))
		}
		if err := w.cb.Close(); err != nil {
			w.logger.Warn("failed to close callback",
				zap.String("worker_id", w.id),
				zap.Error(err))
		}
		w.logger.Info("worker exiting",
			zap.String("worker_id", w.id),
			zap.String("state", w.State().String()))
		if w.onExit != nil {
			w.onExit(w)
		}
	}()

	for !w.coord.IsStopping() {
		w.sleep(w.period)
		if w.coord.IsStopping() {
			break
		}

		if err := w.deliver(context.Background(), w.cb, w.message); err != nil {
			w.state.Store(int32(WorkerFailed))
			w.logger.Warn("lost a client",
				zap.String("worker_id", w.id),
				zap.Error(err))
			return
		}
	}

	w.state.Store(int32(WorkerStopped))
}
