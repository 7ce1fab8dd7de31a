// Package config loads subscriptiond's configuration from built-in defaults,
// an optional file, and the environment, in that order of increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete service configuration.
type Config struct {
	Service      ServiceConfig
	HTTP         HTTPConfig
	Logging      LoggingConfig
	Subscription SubscriptionConfig
	AddressSpace AddressSpaceConfig
}

// ServiceConfig contains service identification.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// HTTPConfig contains HTTP server settings for the health/metrics endpoint.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// SubscriptionConfig tunes the subscription engine.
type SubscriptionConfig struct {
	MaxPublishRequestCredits  uint32
	DefaultPublishingInterval time.Duration
	MinPublishingInterval     time.Duration
	Debug                     bool
}

// AddressSpaceConfig locates the demo address space's node catalog.
type AddressSpaceConfig struct {
	CatalogPath string
}

// Load reads configuration from (in ascending precedence) built-in
// defaults, an optional YAML file, and SUBSCRIPTIOND_-prefixed environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("subscriptiond")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/subscriptiond")
	if path := os.Getenv("SUBSCRIPTIOND_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SUBSCRIPTIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A file named by SUBSCRIPTIOND_CONFIG_FILE that does not exist is
		// reported as a plain not-exist error rather than
		// ConfigFileNotFoundError; both mean "no file".
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("service.name"),
			Version:     v.GetString("service.version"),
			Environment: v.GetString("service.environment"),
		},
		HTTP: HTTPConfig{
			Port:         v.GetInt("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Subscription: SubscriptionConfig{
			MaxPublishRequestCredits:  uint32(v.GetUint("subscription.max_publish_request_credits")),
			DefaultPublishingInterval: v.GetDuration("subscription.default_publishing_interval"),
			MinPublishingInterval:     v.GetDuration("subscription.min_publishing_interval"),
			Debug:                     v.GetBool("subscription.debug"),
		},
		AddressSpace: AddressSpaceConfig{
			CatalogPath: v.GetString("address_space.catalog_path"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "subscriptiond")
	v.SetDefault("service.version", "0.1.0")
	v.SetDefault("service.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("subscription.max_publish_request_credits", 100)
	v.SetDefault("subscription.default_publishing_interval", 1*time.Second)
	v.SetDefault("subscription.min_publishing_interval", 50*time.Millisecond)
	v.SetDefault("subscription.debug", false)

	v.SetDefault("address_space.catalog_path", "configs/catalog.yaml")
}

func validate(cfg *Config) error {
	if cfg.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	if cfg.Subscription.MaxPublishRequestCredits == 0 || cfg.Subscription.MaxPublishRequestCredits > 100 {
		return fmt.Errorf("subscription.max_publish_request_credits must be in (0, 100]")
	}
	if cfg.Subscription.MinPublishingInterval <= 0 {
		return fmt.Errorf("subscription.min_publishing_interval must be positive")
	}
	if cfg.Subscription.DefaultPublishingInterval < cfg.Subscription.MinPublishingInterval {
		return fmt.Errorf("subscription.default_publishing_interval cannot be below subscription.min_publishing_interval")
	}
	return nil
}
