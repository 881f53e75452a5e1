package config

import (
	"fmt"
	"time"
)

// RetryConfig tunes the exponential backoff envelope.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retries after the initial try.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty"`

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`

	// BackoffMultiplier is the per-attempt growth factor.
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`

	// JitterFactor randomizes each delay by +/- this fraction.
	JitterFactor float64 `yaml:"jitter_factor,omitempty" json:"jitter_factor,omitempty"`
}

// SetDefaults applies default values.
func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.JitterFactor == 0 {
		c.JitterFactor = 0.1
	}
}

// Validate checks the retry configuration.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", c.BackoffMultiplier)
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor must be in [0, 1], got %v", c.JitterFactor)
	}
	return nil
}

// CircuitBreakerConfig tunes the three-state breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`

	// RecoveryTimeout is how long the breaker stays open before a half-open
	// probe is allowed.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout,omitempty" json:"recovery_timeout,omitempty"`

	// HalfOpenSuccessThreshold is how many successive half-open successes
	// close the breaker again.
	HalfOpenSuccessThreshold int `yaml:"half_open_success_threshold,omitempty" json:"half_open_success_threshold,omitempty"`
}

// SetDefaults applies default values.
func (c *CircuitBreakerConfig) SetDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenSuccessThreshold == 0 {
		c.HalfOpenSuccessThreshold = 2
	}
}

// Validate checks the breaker configuration.
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery_timeout must be positive, got %v", c.RecoveryTimeout)
	}
	if c.HalfOpenSuccessThreshold < 1 {
		return fmt.Errorf("half_open_success_threshold must be >= 1, got %d", c.HalfOpenSuccessThreshold)
	}
	return nil
}
