package endpoints

import (
	"fmt"
	"net/url"
	"time"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
)

/* Endpoint represents a webhook destination configuration
 * Maps endpoint_id to a target URL with signing and delivery settings
 */
type Endpoint struct {
	ID     string
	URL    string
	Secret string // HMAC signing secret; empty means unsigned delivery

	TimeoutSeconds int // Per-attempt HTTP timeout (0: platform default)
	MaxRetries     int // Attempts per logical delivery (0: platform default)

	FailureWindowSeconds int // Breaker failure window (0: platform default)
	FailureThreshold     int // Failures that open the breaker (0: platform default)
	CooldownSeconds      int // Open-state duration (0: platform default)
}

// Validate checks if the endpoint configuration is valid
func (e *Endpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("endpoint_id cannot be empty")
	}
	if e.URL == "" {
		return fmt.Errorf("url cannot be empty for endpoint %s", e.ID)
	}
	parsed, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("invalid url for endpoint %s: %w", e.ID, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url must be http or https for endpoint %s (got %q)", e.ID, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url must have a host for endpoint %s", e.ID)
	}
	if e.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative for endpoint %s", e.ID)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative for endpoint %s", e.ID)
	}
	if e.FailureWindowSeconds < 0 {
		return fmt.Errorf("failure_window_seconds cannot be negative for endpoint %s", e.ID)
	}
	if e.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold cannot be negative for endpoint %s", e.ID)
	}
	if e.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds cannot be negative for endpoint %s", e.ID)
	}
	return nil
}

// GetTimeout returns the per-attempt timeout
// Priority: endpoint-specific > config > platform default
func (e *Endpoint) GetTimeout(cfg *config.Config) time.Duration {
	seconds := config.DefaultTimeoutSeconds
	if cfg != nil && cfg.WebhookTimeoutSeconds > 0 {
		seconds = cfg.WebhookTimeoutSeconds
	}
	if e.TimeoutSeconds > 0 {
		seconds = e.TimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// GetMaxRetries returns the attempts per logical delivery
// Priority: endpoint-specific > config > platform default
func (e *Endpoint) GetMaxRetries(cfg *config.Config) int {
	retries := config.DefaultMaxRetries
	if cfg != nil && cfg.WebhookMaxRetries > 0 {
		retries = cfg.WebhookMaxRetries
	}
	if e.MaxRetries > 0 {
		retries = e.MaxRetries
	}
	return retries
}

// GetBreakerSettings returns the breaker settings for this endpoint
// Priority: endpoint-specific > config > platform default
func (e *Endpoint) GetBreakerSettings(cfg *config.Config) breaker.Settings {
	settings := breaker.Settings{}
	if cfg != nil {
		settings.FailureWindow = cfg.GetFailureWindow()
		settings.FailureThreshold = cfg.BreakerFailureThreshold
		settings.Cooldown = cfg.GetCooldown()
	}
	if e.FailureWindowSeconds > 0 {
		settings.FailureWindow = time.Duration(e.FailureWindowSeconds) * time.Second
	}
	if e.FailureThreshold > 0 {
		settings.FailureThreshold = e.FailureThreshold
	}
	if e.CooldownSeconds > 0 {
		settings.Cooldown = time.Duration(e.CooldownSeconds) * time.Second
	}
	return settings
}
