package config

import (
	"strings"

	"go.uber.org/zap"
)

// LogConfigurationSummary returns the startup configuration as zap fields.
// Secrets are reported as "configured" booleans only. New fields must be
// added here.
func (c *Config) LogConfigurationSummary() []zap.Field {
	configPath := c.configPath
	if configPath == "" {
		configPath = "none (using defaults and environment variables)"
	}

	return []zap.Field{
		// General
		zap.String("config_file_path", configPath),
		zap.String("log_level", c.LogLevel),
		zap.String("log_format", c.LogFormat),
		zap.Bool("sentry_configured", c.SentryDSN != ""),

		// API
		zap.Int("api_port", c.APIPort),
		zap.Bool("api_key_configured", c.APIKey != ""),
		zap.String("advertised_url", maskURL(c.EndpointURL())),
		zap.String("gin_mode", c.GinMode),

		// Redis
		zap.String("redis_host", c.Redis.Host),
		zap.Int("redis_port", c.Redis.Port),
		zap.Bool("redis_password_configured", c.Redis.Password != ""),
		zap.Int("redis_database", c.Redis.Database),
		zap.Bool("redis_tls_enabled", c.Redis.TLSEnabled),
		zap.Bool("redis_cluster_enabled", c.Redis.ClusterEnabled),

		// Naming
		zap.Bool("naming_enabled", c.Naming.Enabled),
		zap.String("naming_name", c.Naming.Name),
		zap.Int("naming_ttl_seconds", c.Naming.TTLSeconds),

		// Dispatcher
		zap.Int("dispatcher_max_workers", c.Dispatcher.MaxWorkers),
		zap.Int("dispatcher_delivery_timeout_seconds", c.Dispatcher.DeliveryTimeoutSeconds),
		zap.Int("dispatcher_shutdown_timeout_seconds", c.Dispatcher.ShutdownTimeoutSeconds),

		// Webhook
		zap.String("webhook_header_prefix", c.Webhook.HeaderPrefix),
		zap.String("webhook_user_agent", c.Webhook.UserAgent),

		// Telemetry
		zap.Bool("otel_enabled", c.OpenTelemetry.Enabled()),
		zap.String("otel_service_name", c.OpenTelemetry.ServiceName),

		// ID Generation
		zap.String("idgen_type", c.IDGen.Type),
		zap.String("idgen_worker_prefix", c.IDGen.WorkerPrefix),
	}
}

// maskURL hides the userinfo of a URL.
func maskURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "://"); idx != -1 {
		protocol := url[:idx+3]
		rest := url[idx+3:]
		if atIdx := strings.Index(rest, "@"); atIdx != -1 {
			return protocol + "***:***" + rest[atIdx:]
		}
	}
	return url
}
