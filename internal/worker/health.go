package worker

import (
	"sync"
	"time"
)

const (
	WorkerStatusStarting = "starting"
	WorkerStatusHealthy  = "healthy"
	WorkerStatusFailed   = "failed"
)

// WorkerHealth is the externally visible state of one worker. Error details
// stay in the logs.
type WorkerHealth struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

type HealthStatus struct {
	Status  string                  `json:"status"`
	Workers map[string]WorkerHealth `json:"workers"`
}

// HealthTracker records the state of every supervised worker. It is safe for
// concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	workers map[string]WorkerHealth
	now     func() time.Time
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		workers: make(map[string]WorkerHealth),
		now:     time.Now,
	}
}

func (h *HealthTracker) set(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = WorkerHealth{Status: status, LastCheck: h.now()}
}

func (h *HealthTracker) MarkStarting(name string) { h.set(name, WorkerStatusStarting) }

func (h *HealthTracker) MarkHealthy(name string) { h.set(name, WorkerStatusHealthy) }

func (h *HealthTracker) MarkFailed(name string) { h.set(name, WorkerStatusFailed) }

// IsHealthy reports false as soon as one worker has failed. Starting workers
// count as healthy.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthyLocked()
}

func (h *HealthTracker) healthyLocked() bool {
	for _, w := range h.workers {
		if w.Status == WorkerStatusFailed {
			return false
		}
	}
	return true
}

func (h *HealthTracker) GetStatus() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	workers := make(map[string]WorkerHealth, len(h.workers))
	for name, w := range h.workers {
		workers[name] = w
	}

	status := WorkerStatusHealthy
	if !h.healthyLocked() {
		status = WorkerStatusFailed
	}
	return HealthStatus{Status: status, Workers: workers}
}
