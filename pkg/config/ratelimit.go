package config

import (
	"fmt"
	"time"
)

// RateLimitConfig tunes proactive request admission.
type RateLimitConfig struct {
	// Enabled turns the limiter on. Disabled limiters admit immediately.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerMinute caps requests in any sliding 60s window.
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty"`

	// RequestsPerDay caps requests per UTC day.
	RequestsPerDay int `yaml:"requests_per_day,omitempty" json:"requests_per_day,omitempty"`

	// TokensPerMinute caps estimated tokens in any sliding 60s window.
	TokensPerMinute int `yaml:"tokens_per_minute,omitempty" json:"tokens_per_minute,omitempty"`
}

// SetDefaults applies default values.
func (c *RateLimitConfig) SetDefaults() {
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 50
	}
	if c.RequestsPerDay == 0 {
		c.RequestsPerDay = 5000
	}
	if c.TokensPerMinute == 0 {
		c.TokensPerMinute = 100000
	}
}

// Validate checks the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be >= 0, got %d", c.RequestsPerMinute)
	}
	if c.RequestsPerDay < 0 {
		return fmt.Errorf("requests_per_day must be >= 0, got %d", c.RequestsPerDay)
	}
	if c.TokensPerMinute < 0 {
		return fmt.Errorf("tokens_per_minute must be >= 0, got %d", c.TokensPerMinute)
	}
	return nil
}

// DeduplicationConfig tunes in-flight request coalescing.
type DeduplicationConfig struct {
	// Enabled turns deduplication on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Window is how long a completed entry remains eligible for reuse by an
	// identical request before cleanup evicts it.
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`

	// MaxCacheSize bounds the entry map; the oldest entry is evicted first.
	MaxCacheSize int `yaml:"max_cache_size,omitempty" json:"max_cache_size,omitempty"`

	// HashMessages keys entries by a content hash of {messages, model,
	// max_tokens}; when false the full request JSON is the key.
	HashMessages bool `yaml:"hash_messages,omitempty" json:"hash_messages,omitempty"`
}

// SetDefaults applies default values.
func (c *DeduplicationConfig) SetDefaults() {
	if c.Window == 0 {
		c.Window = 5 * time.Second
	}
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = 100
	}
}

// Validate checks the deduplication configuration.
func (c *DeduplicationConfig) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("window must be >= 0, got %v", c.Window)
	}
	if c.MaxCacheSize < 0 {
		return fmt.Errorf("max_cache_size must be >= 0, got %d", c.MaxCacheSize)
	}
	return nil
}
