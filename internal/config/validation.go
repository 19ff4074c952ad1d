package config

import (
	"errors"
	"net/url"

	"github.com/hookdeck/cbserver/internal/idgen"
	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/otel"
)

var (
	ErrInvalidAPIPort       = errors.New("api_port must be between 1 and 65535")
	ErrInvalidLogLevel      = errors.New("log_level must be one of debug, info, warn, error")
	ErrInvalidLogFormat     = errors.New("log_format must be json or console")
	ErrInvalidAdvertisedURL = errors.New("advertised_url must be an absolute http(s) URL")
	ErrMissingRedis         = errors.New("redis host is required when naming is enabled")
	ErrInvalidNamingName    = errors.New("naming name is invalid")
	ErrInvalidNamingTTL     = errors.New("naming ttl_seconds must not be negative")
	ErrInvalidDispatcher    = errors.New("dispatcher limits and timeouts must not be negative")
	ErrInvalidIDGenType     = errors.New("id_gen type must be one of uuidv4, uuidv7, nanoid")
	ErrInvalidOTELProtocol  = errors.New("open_telemetry protocol must be grpc or http/protobuf")
	ErrInvalidOTELExporter  = errors.New("open_telemetry exporter must be otlp or console")
)

// Validate checks the configuration and records that it passed.
func (c *Config) Validate() error {
	c.validated = false

	for _, check := range []func() error{
		c.validateAPI,
		c.validateLogging,
		c.validateNaming,
		c.validateDispatcher,
		c.validateIDGen,
		c.validateOpenTelemetry,
	} {
		if err := check(); err != nil {
			return err
		}
	}

	c.validated = true
	return nil
}

func (c *Config) IsValidated() bool {
	return c.validated
}

func (c *Config) validateAPI() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return ErrInvalidAPIPort
	}
	if c.AdvertisedURL != "" {
		u, err := url.Parse(c.AdvertisedURL)
		if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidAdvertisedURL
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	return nil
}

func (c *Config) validateNaming() error {
	if _, err := naming.ParseName(c.Naming.Name); err != nil {
		return errors.Join(ErrInvalidNamingName, err)
	}
	if c.Naming.TTLSeconds < 0 {
		return ErrInvalidNamingTTL
	}
	if c.Naming.Enabled && (c.Redis == nil || c.Redis.Host == "") {
		return ErrMissingRedis
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	d := c.Dispatcher
	if d.MaxWorkers < 0 || d.DeliveryTimeoutSeconds < 0 || d.ShutdownTimeoutSeconds < 0 {
		return ErrInvalidDispatcher
	}
	return nil
}

func (c *Config) validateIDGen() error {
	switch c.IDGen.Type {
	case "", idgen.TypeUUIDv4, idgen.TypeUUIDv7, idgen.TypeNanoid:
		return nil
	default:
		return ErrInvalidIDGenType
	}
}

func (c *Config) validateOpenTelemetry() error {
	if !c.OpenTelemetry.Enabled() {
		return nil
	}
	for _, typeConfig := range []OpenTelemetryTypeConfig{c.OpenTelemetry.Traces, c.OpenTelemetry.Metrics} {
		switch typeConfig.Protocol {
		case otel.ProtocolGRPC, otel.ProtocolHTTP:
		default:
			return ErrInvalidOTELProtocol
		}
		switch typeConfig.Exporter {
		case otel.ExporterOTLP, otel.ExporterConsole:
		default:
			return ErrInvalidOTELExporter
		}
	}
	return nil
}
