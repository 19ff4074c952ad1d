package otel

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"

	ExporterOTLP    = "otlp"
	ExporterConsole = "console"
)

type OpenTelemetryTypeConfig struct {
	Exporter string
	Protocol string
	Endpoint string
}

type OpenTelemetryConfig struct {
	ServiceName string
	Traces      *OpenTelemetryTypeConfig
	Metrics     *OpenTelemetryTypeConfig
}
