package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	t.Setenv("SUBSCRIPTIOND_CONFIG_FILE", "/nonexistent/subscriptiond.yaml")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "subscriptiond", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.EqualValues(t, 100, cfg.Subscription.MaxPublishRequestCredits)
	assert.Equal(t, 1*time.Second, cfg.Subscription.DefaultPublishingInterval)
	assert.Equal(t, "configs/catalog.yaml", cfg.AddressSpace.CatalogPath)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("SUBSCRIPTIOND_CONFIG_FILE", "/nonexistent/subscriptiond.yaml")
	t.Setenv("SUBSCRIPTIOND_HTTP_PORT", "9090")
	t.Setenv("SUBSCRIPTIOND_LOGGING_LEVEL", "debug")
	t.Setenv("SUBSCRIPTIOND_SUBSCRIPTION_MAX_PUBLISH_REQUEST_CREDITS", "50")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.EqualValues(t, 50, cfg.Subscription.MaxPublishRequestCredits)
}

func TestValidateRejectsCreditsOutOfRange(t *testing.T) {
	cfg := &Config{
		HTTP:         HTTPConfig{Port: 8080},
		Subscription: SubscriptionConfig{MaxPublishRequestCredits: 101, MinPublishingInterval: time.Second, DefaultPublishingInterval: time.Second},
	}
	assert.Error(t, validate(cfg))

	cfg.Subscription.MaxPublishRequestCredits = 0
	assert.Error(t, validate(cfg))
}

func TestValidateRejectsNonPositivePort(t *testing.T) {
	cfg := &Config{
		HTTP:         HTTPConfig{Port: 0},
		Subscription: SubscriptionConfig{MaxPublishRequestCredits: 10, MinPublishingInterval: time.Second, DefaultPublishingInterval: time.Second},
	}
	assert.Error(t, validate(cfg))
}

func TestValidateRejectsDefaultBelowMinimumInterval(t *testing.T) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: 8080},
		Subscription: SubscriptionConfig{
			MaxPublishRequestCredits:  10,
			MinPublishingInterval:     time.Second,
			DefaultPublishingInterval: 500 * time.Millisecond,
		},
	}
	assert.Error(t, validate(cfg))
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: 8080},
		Subscription: SubscriptionConfig{
			MaxPublishRequestCredits:  100,
			MinPublishingInterval:     50 * time.Millisecond,
			DefaultPublishingInterval: time.Second,
		},
	}
	assert.NoError(t, validate(cfg))
}
