package config

import (
	"fmt"

	"github.com/hookdeck/cbserver/internal/otel"
	v "github.com/spf13/viper"
)

type OpenTelemetryTypeConfig struct {
	Exporter string `yaml:"exporter" env:"EXPORTER"`
	Protocol string `yaml:"protocol" env:"PROTOCOL"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// OpenTelemetryConfig enables tracing and metrics when ServiceName is set.
type OpenTelemetryConfig struct {
	ServiceName string                  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Traces      OpenTelemetryTypeConfig `yaml:"traces" envPrefix:"OTEL_TRACES_"`
	Metrics     OpenTelemetryTypeConfig `yaml:"metrics" envPrefix:"OTEL_METRICS_"`
}

func (c *OpenTelemetryConfig) Enabled() bool {
	return c.ServiceName != ""
}

// resolveProtocols fills unset protocols and endpoints from the standard
// OTEL_EXPORTER_OTLP_* variables.
func (c *OpenTelemetryConfig) resolveProtocols(osInterface OSInterface) {
	viper := v.New()
	for _, key := range []string{
		"OTEL_EXPORTER_OTLP_PROTOCOL",
		"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
		"OTEL_EXPORTER_OTLP_METRICS_PROTOCOL",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
	} {
		if value := osInterface.Getenv(key); value != "" {
			viper.Set(key, value)
		}
	}

	for telemetryType, typeConfig := range map[string]*OpenTelemetryTypeConfig{
		"TRACES":  &c.Traces,
		"METRICS": &c.Metrics,
	} {
		if typeConfig.Exporter == "" {
			typeConfig.Exporter = "otlp"
		}
		if typeConfig.Protocol == "" {
			typeConfig.Protocol = getOTLPSetting(viper, telemetryType, "PROTOCOL", otel.ProtocolGRPC)
		}
		if typeConfig.Endpoint == "" {
			typeConfig.Endpoint = getOTLPSetting(viper, telemetryType, "ENDPOINT", "")
		}
	}
}

func getOTLPSetting(viper *v.Viper, telemetryType, setting, fallback string) string {
	value := viper.GetString(fmt.Sprintf("OTEL_EXPORTER_OTLP_%s_%s", telemetryType, setting))
	if value == "" {
		value = viper.GetString("OTEL_EXPORTER_OTLP_" + setting)
	}
	if value == "" {
		value = fallback
	}
	return value
}

func (c *OpenTelemetryConfig) ToOTELConfig() *otel.OpenTelemetryConfig {
	if !c.Enabled() {
		return nil
	}

	return &otel.OpenTelemetryConfig{
		ServiceName: c.ServiceName,
		Traces: &otel.OpenTelemetryTypeConfig{
			Exporter: c.Traces.Exporter,
			Protocol: c.Traces.Protocol,
			Endpoint: c.Traces.Endpoint,
		},
		Metrics: &otel.OpenTelemetryTypeConfig{
			Exporter: c.Metrics.Exporter,
			Protocol: c.Metrics.Protocol,
			Endpoint: c.Metrics.Endpoint,
		},
	}
}
