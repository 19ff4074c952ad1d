package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureHTTPEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4318", "http://localhost:4318/v1/traces"},
		{"http://collector:4318", "http://collector:4318/v1/traces"},
		{"https://collector/", "https://collector/v1/traces"},
		{"http://collector:4318/v1/traces", "http://collector:4318/v1/traces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ensureHTTPEndpoint("traces", tt.in))
	}
}

func TestSetupOTelSDK_Disabled(t *testing.T) {
	shutdown, err := SetupOTelSDK(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupOTelSDK_Console(t *testing.T) {
	shutdown, err := SetupOTelSDK(context.Background(), &OpenTelemetryConfig{
		ServiceName: "cbserver-test",
		Traces:      &OpenTelemetryTypeConfig{Exporter: ExporterConsole},
		Metrics:     &OpenTelemetryTypeConfig{Exporter: ExporterConsole},
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
