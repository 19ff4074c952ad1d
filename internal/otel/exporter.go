package otel

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func newTraceProvider(ctx context.Context, c *OpenTelemetryTypeConfig, res *resource.Resource) (*trace.TracerProvider, error) {
	if c == nil {
		return nil, nil
	}

	var err error
	var traceExporter trace.SpanExporter
	switch {
	case c.Exporter == ExporterConsole:
		traceExporter, err = stdouttrace.New()
	case c.Protocol == ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if c.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(c.Endpoint))
		}
		traceExporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if c.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(ensureHTTPEndpoint("traces", c.Endpoint)))
		}
		traceExporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(traceExporter, trace.WithBatchTimeout(time.Second)),
	), nil
}

func newMeterProvider(ctx context.Context, c *OpenTelemetryTypeConfig, res *resource.Resource) (*metric.MeterProvider, error) {
	if c == nil {
		return nil, nil
	}

	var err error
	var metricExporter metric.Exporter
	switch {
	case c.Exporter == ExporterConsole:
		metricExporter, err = stdoutmetric.New()
	case c.Protocol == ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if c.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(c.Endpoint))
		}
		metricExporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if c.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(ensureHTTPEndpoint("metrics", c.Endpoint)))
		}
		metricExporter, err = otlpmetrichttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(15*time.Second))),
	), nil
}

// ensureHTTPEndpoint turns "host:port" into "http://host:port/v1/<type>".
func ensureHTTPEndpoint(exporterType string, endpoint string) string {
	fullEndpoint := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		fullEndpoint = "http://" + endpoint
	}
	suffix := "/v1/" + exporterType
	if !strings.HasSuffix(fullEndpoint, suffix) {
		fullEndpoint = strings.TrimRight(fullEndpoint, "/") + suffix
	}
	return fullEndpoint
}
