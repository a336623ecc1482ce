package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Process-wide defaults for the delivery engine. Every value can be
 * overridden per endpoint in endpoints.yaml; these are the fallbacks.
 */
const (
	DefaultTimeoutSeconds       = 10
	DefaultMaxRetries           = 3
	DefaultReplayWindowSeconds  = 300
	DefaultFailureWindowSeconds = 120
	DefaultFailureThreshold     = 5
	DefaultCooldownSeconds      = 60
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	EndpointsFile string `mapstructure:"ENDPOINTS_FILE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	WebhookTimeoutSeconds      int `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookMaxRetries          int `mapstructure:"WEBHOOK_MAX_RETRIES"`
	WebhookReplayWindowSeconds int `mapstructure:"WEBHOOK_REPLAY_WINDOW_SECONDS"`

	BreakerFailureWindowSeconds int `mapstructure:"BREAKER_FAILURE_WINDOW_SECONDS"`
	BreakerFailureThreshold     int `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerCooldownSeconds      int `mapstructure:"BREAKER_COOLDOWN_SECONDS"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENDPOINTS_FILE", "endpoints.yaml")
	viper.SetDefault("WEBHOOK_TIMEOUT_SECONDS", DefaultTimeoutSeconds)
	viper.SetDefault("WEBHOOK_MAX_RETRIES", DefaultMaxRetries)
	viper.SetDefault("WEBHOOK_REPLAY_WINDOW_SECONDS", DefaultReplayWindowSeconds)
	viper.SetDefault("BREAKER_FAILURE_WINDOW_SECONDS", DefaultFailureWindowSeconds)
	viper.SetDefault("BREAKER_FAILURE_THRESHOLD", DefaultFailureThreshold)
	viper.SetDefault("BREAKER_COOLDOWN_SECONDS", DefaultCooldownSeconds)

	err := viper.ReadInConfig()
	if err != nil {
		// The .env file is optional; environment and defaults suffice
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// GetTimeout returns the per-attempt HTTP timeout
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

// GetReplayWindow returns the signature freshness window
func (c *Config) GetReplayWindow() time.Duration {
	return time.Duration(c.WebhookReplayWindowSeconds) * time.Second
}

// GetFailureWindow returns how long breaker failures count towards the threshold
func (c *Config) GetFailureWindow() time.Duration {
	return time.Duration(c.BreakerFailureWindowSeconds) * time.Second
}

// GetCooldown returns how long an open breaker blocks requests
func (c *Config) GetCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}
