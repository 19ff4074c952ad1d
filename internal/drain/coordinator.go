// Package drain implements the shared stop flag and live-worker countdown used to
// quiesce a dynamic set of background workers.
//
// Workers call BeginWorker before they start and EndWorker exactly once when they
// exit. A shutdown initiator calls RequestStop, which workers poll cooperatively,
// and then AwaitDrain, which returns once the live count has reached zero.
package drain

import (
	"context"
	"sync"
)

// Coordinator holds the stop flag and the live-worker counter. The zero value is
// not usable; construct with New.
type Coordinator struct {
	mu       sync.Mutex
	live     int
	stopping bool
	sealed   bool

	// drained is closed when live drops to zero and replaced when it leaves zero.
	drained chan struct{}
	// stopped is closed by the first RequestStop.
	stopped chan struct{}
}

func New() *Coordinator {
	drained := make(chan struct{})
	close(drained)
	return &Coordinator{
		drained: drained,
		stopped: make(chan struct{}),
	}
}

// BeginWorker registers one more live worker. It never fails, even once the
// coordinator is sealed; use TryBeginWorker to honour the seal.
func (c *Coordinator) BeginWorker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beginLocked()
}

// TryBeginWorker registers one more live worker unless the coordinator has been
// sealed.
func (c *Coordinator) TryBeginWorker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return false
	}
	c.beginLocked()
	return true
}

func (c *Coordinator) beginLocked() {
	if c.live == 0 {
		c.drained = make(chan struct{})
	}
	c.live++
}

// EndWorker unregisters a live worker. The call that brings the count to zero
// releases every goroutine blocked in AwaitDrain. Calling EndWorker more times
// than BeginWorker is a programming error and panics.
func (c *Coordinator) EndWorker() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == 0 {
		panic("drain: EndWorker called with no live workers")
	}
	c.live--
	if c.live == 0 {
		close(c.drained)
	}
}

// RequestStop sets the stop flag. It reports whether this call was the one that
// set it; later calls are no-ops.
func (c *Coordinator) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopping {
		return false
	}
	c.stopping = true
	close(c.stopped)
	return true
}

func (c *Coordinator) IsStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// Stopping returns a channel closed once the stop flag is set.
func (c *Coordinator) Stopping() <-chan struct{} {
	return c.stopped
}

// Seal forbids further TryBeginWorker calls, but only if the coordinator is
// stopping and fully drained at the moment of the call. It reports whether the
// seal is in place; a false result means a worker slipped in and the caller
// should wait for drain again.
func (c *Coordinator) Seal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return true
	}
	if !c.stopping || c.live != 0 {
		return false
	}
	c.sealed = true
	return true
}

func (c *Coordinator) IsSealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// Live returns the current number of live workers.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// AwaitDrain blocks until no workers are live or ctx is done. It returns
// immediately when the count is already zero.
//
// If a worker is begun after the count reached zero but before a waiter observed
// it, that waiter still returns: it waits on the zero crossing it saw, not on a
// later one.
func (c *Coordinator) AwaitDrain(ctx context.Context) error {
	c.mu.Lock()
	if c.live == 0 {
		c.mu.Unlock()
		return nil
	}
	drained := c.drained
	c.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
