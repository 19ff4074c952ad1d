package naming

import (
	"context"
	"time"

	"github.com/hookdeck/cbserver/internal/logging"
	"github.com/hookdeck/cbserver/internal/worker"
	"go.uber.org/zap"
)

// Binding publishes one address under one name and keeps it alive while the
// server runs.
type Binding struct {
	registry Registry
	name     Name
	address  string
	refresh  time.Duration
	logger   *logging.Logger
}

var _ worker.Worker = (*Binding)(nil)

// NewBinding returns a binding refreshed every refresh interval. A zero
// interval publishes once and only unpublishes on exit.
func NewBinding(registry Registry, name Name, address string, refresh time.Duration, logger *logging.Logger) *Binding {
	return &Binding{
		registry: registry,
		name:     name,
		address:  address,
		refresh:  refresh,
		logger:   logger,
	}
}

// Publish binds the address, overwriting any previous binding.
func (b *Binding) Publish(ctx context.Context) error {
	if err := b.registry.Publish(ctx, b.name, b.address); err != nil {
		return err
	}
	b.logger.Ctx(ctx).Info("published endpoint",
		zap.String("name", b.name.String()),
		zap.String("address", b.address))
	return nil
}

func (b *Binding) Name() string {
	return "naming-keepalive"
}

// Run refreshes the binding until ctx is cancelled, then removes it. Refresh
// failures are logged; the binding is retried on the next tick.
func (b *Binding) Run(ctx context.Context) error {
	if b.refresh > 0 {
		ticker := time.NewTicker(b.refresh)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if err := b.registry.Publish(ctx, b.name, b.address); err != nil && ctx.Err() == nil {
					b.logger.Ctx(ctx).Warn("failed to refresh name binding",
						zap.String("name", b.name.String()),
						zap.Error(err))
				}
			}
		}
	} else {
		<-ctx.Done()
	}

	unbindCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.registry.Unpublish(unbindCtx, b.name); err != nil {
		b.logger.Warn("failed to remove name binding", zap.String("name", b.name.String()), zap.Error(err))
	}
	return nil
}
