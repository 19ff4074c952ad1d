package worker

import "context"

// Worker is a long-running process of the server, such as the HTTP listener
// or the name binding keepalive.
//
// Run blocks until ctx is cancelled or the worker can no longer do its job.
// A nil or context.Canceled result is a clean stop; anything else marks the
// worker failed in the health tracker.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

type funcWorker struct {
	name string
	run  func(ctx context.Context) error
}

// NewFuncWorker adapts a function to the Worker interface.
func NewFuncWorker(name string, run func(ctx context.Context) error) Worker {
	return &funcWorker{name: name, run: run}
}

func (w *funcWorker) Name() string { return w.name }

func (w *funcWorker) Run(ctx context.Context) error { return w.run(ctx) }
