package dispatcher

import (
	"context"
	"errors"

	"github.com/hookdeck/cbserver/internal/callback"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hookdeck/cbserver/internal/dispatcher"

var (
	kindKey     = attribute.Key("kind")
	providerKey = attribute.Key("provider")
	codeKey     = attribute.Key("code")
)

const (
	kindOnce     = "once"
	kindPeriodic = "periodic"
)

type dispatcherMetrics struct {
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	liveWorkers      metric.Int64UpDownCounter
}

func newDispatcherMetrics(provider metric.MeterProvider) (*dispatcherMetrics, error) {
	meter := provider.Meter(meterName)

	deliveries, err := meter.Int64Counter("cbserver.deliveries",
		metric.WithDescription("Callback deliveries attempted"),
		metric.WithUnit("{delivery}"))
	if err != nil {
		return nil, err
	}
	deliveryFailures, err := meter.Int64Counter("cbserver.delivery_failures",
		metric.WithDescription("Callback deliveries that failed"),
		metric.WithUnit("{delivery}"))
	if err != nil {
		return nil, err
	}
	liveWorkers, err := meter.Int64UpDownCounter("cbserver.live_workers",
		metric.WithDescription("Periodic workers currently running"),
		metric.WithUnit("{worker}"))
	if err != nil {
		return nil, err
	}

	return &dispatcherMetrics{
		deliveries:       deliveries,
		deliveryFailures: deliveryFailures,
		liveWorkers:      liveWorkers,
	}, nil
}

func (m *dispatcherMetrics) delivered(ctx context.Context, kind string, err error) {
	m.deliveries.Add(ctx, 1, metric.WithAttributes(kindKey.String(kind)))
	if err == nil {
		return
	}

	provider, code := "unknown", "unknown"
	var attempt *callback.ErrDeliveryAttempt
	if errors.As(err, &attempt) {
		provider, code = attempt.Provider, attempt.Code
	}
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(
		kindKey.String(kind),
		providerKey.String(provider),
		codeKey.String(code),
	))
}

func (m *dispatcherMetrics) workerStarted(ctx context.Context) {
	m.liveWorkers.Add(ctx, 1)
}

func (m *dispatcherMetrics) workerExited(ctx context.Context) {
	m.liveWorkers.Add(ctx, -1)
}
