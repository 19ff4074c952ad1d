package testinfra

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hookdeck/cbserver/internal/util/testutil"
	"github.com/spf13/viper"
)

var (
	cfgSync sync.Once
	cfg     *Config
)

// Config lists the brokers integration tests may run against. An empty value
// means the broker is not available and the test is skipped.
type Config struct {
	TestInfra     bool
	RedisAddr     string
	RabbitMQAddr  string
	LocalStackURL string
	KafkaBrokers  string
}

func initConfig() {
	v := viper.New()
	v.AutomaticEnv()

	configFile := os.Getenv("TEST_CONFIG_FILE")
	if configFile == "" {
		configFile = ".env.test"
	}
	if projectRoot, err := findProjectRoot(configFile); err == nil {
		v.SetConfigFile(filepath.Join(projectRoot, configFile))
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	if !v.GetBool("TESTINFRA") {
		cfg = &Config{}
		return
	}

	localstackURL := v.GetString("TEST_LOCALSTACK_URL")
	if localstackURL != "" && !strings.HasPrefix(localstackURL, "http") {
		localstackURL = "http://" + localstackURL
	}
	cfg = &Config{
		TestInfra:     true,
		RedisAddr:     v.GetString("TEST_REDIS_ADDR"),
		RabbitMQAddr:  strings.TrimPrefix(v.GetString("TEST_RABBITMQ_ADDR"), "amqp://"),
		LocalStackURL: localstackURL,
		KafkaBrokers:  v.GetString("TEST_KAFKA_BROKERS"),
	}
}

func ReadConfig() *Config {
	cfgSync.Do(initConfig)
	return cfg
}

// Require skips the test under -short or when the value returned by pick is
// empty, otherwise it returns that value.
func Require(t *testing.T, pick func(*Config) string) string {
	t.Helper()
	testutil.Integration(t)
	value := pick(ReadConfig())
	if value == "" {
		t.Skip("test infrastructure not configured (set TESTINFRA=1)")
	}
	return value
}

func findProjectRoot(configFile string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return "", os.ErrNotExist
		}
		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	return "", os.ErrNotExist
}
