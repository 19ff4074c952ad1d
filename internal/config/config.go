package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hookdeck/cbserver/internal/redis"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Namespace = "cbserver"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".cbserver.yaml",
		"config/cbserver.yaml",
		"config/cbserver/config.yaml",
		"config/cbserver/.env",

		// Container-friendly absolute paths
		"/config/cbserver.yaml",
		"/config/cbserver/config.yaml",
		"/config/cbserver/.env",
	}
}

type Config struct {
	validated  bool
	configPath string

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
	GinMode   string `yaml:"gin_mode" env:"GIN_MODE"`
	SentryDSN string `yaml:"sentry_dsn" env:"SENTRY_DSN"`

	// API
	APIPort       int    `yaml:"api_port" env:"API_PORT"`
	APIKey        string `yaml:"api_key" env:"API_KEY"`
	AdvertisedURL string `yaml:"advertised_url" env:"ADVERTISED_URL"`

	// Infrastructure
	Redis *RedisConfig `yaml:"redis"`

	Naming        NamingConfig        `yaml:"naming"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	OpenTelemetry OpenTelemetryConfig `yaml:"open_telemetry"`
	IDGen         IDGenConfig         `yaml:"id_gen"`
}

type RedisConfig struct {
	Host           string `yaml:"host" env:"REDIS_HOST"`
	Port           int    `yaml:"port" env:"REDIS_PORT"`
	Username       string `yaml:"username" env:"REDIS_USERNAME"`
	Password       string `yaml:"password" env:"REDIS_PASSWORD"`
	Database       int    `yaml:"database" env:"REDIS_DATABASE"`
	TLSEnabled     bool   `yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
	ClusterEnabled bool   `yaml:"cluster_enabled" env:"REDIS_CLUSTER_ENABLED"`
}

func (c *RedisConfig) ToConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		Password:       c.Password,
		Database:       c.Database,
		TLSEnabled:     c.TLSEnabled,
		ClusterEnabled: c.ClusterEnabled,
	}
}

// NamingConfig controls where the server publishes its endpoint. When
// disabled the binding is kept in process only.
type NamingConfig struct {
	Enabled    bool   `yaml:"enabled" env:"NAMING_ENABLED"`
	Name       string `yaml:"name" env:"NAMING_NAME"`
	TTLSeconds int    `yaml:"ttl_seconds" env:"NAMING_TTL_SECONDS"`
}

func (c NamingConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type DispatcherConfig struct {
	MaxWorkers             int `yaml:"max_workers" env:"DISPATCHER_MAX_WORKERS"`
	DeliveryTimeoutSeconds int `yaml:"delivery_timeout_seconds" env:"DISPATCHER_DELIVERY_TIMEOUT_SECONDS"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" env:"DISPATCHER_SHUTDOWN_TIMEOUT_SECONDS"`
}

func (c DispatcherConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

func (c DispatcherConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

type WebhookConfig struct {
	HeaderPrefix string `yaml:"header_prefix" env:"WEBHOOK_HEADER_PREFIX"`
	UserAgent    string `yaml:"user_agent" env:"WEBHOOK_USER_AGENT"`
}

func (c *Config) InitDefaults() {
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.GinMode = "release"
	c.APIPort = 3333
	c.Redis = &RedisConfig{
		Host: "127.0.0.1",
		Port: 6379,
	}
	c.Naming = NamingConfig{
		Enabled:    true,
		Name:       "test.my_context/Echo.Object",
		TTLSeconds: 0,
	}
	c.Dispatcher = DispatcherConfig{
		MaxWorkers:             0,
		DeliveryTimeoutSeconds: 10,
		ShutdownTimeoutSeconds: 60,
	}
	c.Webhook = WebhookConfig{
		HeaderPrefix: "x-cbserver-",
		UserAgent:    "cbserver",
	}
	c.IDGen = IDGenConfig{
		Type:           "uuidv4",
		WorkerPrefix:   "wrk",
		DeliveryPrefix: "dlv",
	}
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}
	c.configPath = configPath

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing yaml config: %w", err)
	}
	return nil
}

func (c *Config) parseEnvVariables(osInterface OSInterface) error {
	if err := env.ParseWithOptions(c, env.Options{
		Environment: osInterface.Environ(),
	}); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

// Parse builds the configuration from defaults, then the config file, then
// environment variables, and validates the result.
func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	config.InitDefaults()

	if err := config.parseConfigFile(flags.Config, osInterface); err != nil {
		return nil, err
	}

	if err := config.parseEnvVariables(osInterface); err != nil {
		return nil, err
	}

	if flags.LogLevel != "" {
		config.LogLevel = flags.LogLevel
	}
	if flags.APIPort != 0 {
		config.APIPort = flags.APIPort
	}

	config.OpenTelemetry.resolveProtocols(osInterface)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) ConfigFilePath() string {
	return c.configPath
}

// EndpointURL is the address published under the naming name.
func (c *Config) EndpointURL() string {
	if c.AdvertisedURL != "" {
		return strings.TrimRight(c.AdvertisedURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.APIPort)
}
