package config

import (
	"fmt"
	"time"
)

// Mode selects how the dispatcher reaches the model endpoint.
type Mode string

const (
	// ModeDirect talks to the Anthropic-shaped endpoint with the native SDK.
	ModeDirect Mode = "direct"
	// ModeProxy posts the wire request to an SSE-forwarding proxy.
	ModeProxy Mode = "proxy"
)

// Config is the single configuration record for one dispatcher. Recognized
// options are exactly the ones below; nothing else influences behavior.
type Config struct {
	// Mode selects direct or proxy operation.
	Mode Mode `yaml:"mode,omitempty" json:"mode,omitempty"`

	// APIKey authenticates direct mode. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Model identifier sent with each request.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// MaxTokens bounds the model reply length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout is the per-request wall-clock bound.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RetryAttempts is the maximum number of retries (0 disables retry).
	RetryAttempts int `yaml:"retry_attempts,omitempty" json:"retry_attempts,omitempty"`

	// Sampling controls, forwarded verbatim when set.
	Temperature   *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP          *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	TopK          *int     `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	StopSequences []string `yaml:"stop_sequences,omitempty" json:"stop_sequences,omitempty"`

	// ProxyEndpoint and AuthToken route proxy mode.
	ProxyEndpoint string `yaml:"proxy_endpoint,omitempty" json:"proxy_endpoint,omitempty"`
	AuthToken     string `yaml:"auth_token,omitempty" json:"auth_token,omitempty"`

	// IncludeHistory sends prior conversation turns with each request;
	// MaxHistoryMessages prunes the window (0 = unbounded).
	IncludeHistory     bool `yaml:"include_history,omitempty" json:"include_history,omitempty"`
	MaxHistoryMessages int  `yaml:"max_history_messages,omitempty" json:"max_history_messages,omitempty"`

	// CircuitBreaker tunes the breaker; DisableCircuitBreaker bypasses it.
	CircuitBreaker        *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
	DisableCircuitBreaker bool                  `yaml:"disable_circuit_breaker,omitempty" json:"disable_circuit_breaker,omitempty"`

	// RateLimit configures proactive admission.
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// Deduplication configures in-flight request coalescing.
	Deduplication *DeduplicationConfig `yaml:"deduplication,omitempty" json:"deduplication,omitempty"`

	// Retry tunes the backoff envelope.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`

	// EnableToolSearch switches to search mode: only control plus search
	// tools are advertised and widget tools are loaded lazily.
	EnableToolSearch bool `yaml:"enable_tool_search,omitempty" json:"enable_tool_search,omitempty"`

	// MaxLoadedToolsPerSession caps how many widget tools load_tools may
	// accumulate in one session.
	MaxLoadedToolsPerSession int `yaml:"max_loaded_tools_per_session,omitempty" json:"max_loaded_tools_per_session,omitempty"`

	// StreamInactivityTimeout is the longest silent gap tolerated on an open
	// stream before it is failed.
	StreamInactivityTimeout time.Duration `yaml:"stream_inactivity_timeout,omitempty" json:"stream_inactivity_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		if c.ProxyEndpoint != "" {
			c.Mode = ModeProxy
		} else {
			c.Mode = ModeDirect
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv()
	}
	if c.Model == "" {
		c.Model = "claude-sonnet-4-20250514"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxLoadedToolsPerSession == 0 {
		c.MaxLoadedToolsPerSession = 32
	}
	if c.StreamInactivityTimeout == 0 {
		c.StreamInactivityTimeout = 60 * time.Second
	}

	if c.CircuitBreaker == nil {
		c.CircuitBreaker = &CircuitBreakerConfig{}
	}
	c.CircuitBreaker.SetDefaults()

	if c.RateLimit == nil {
		c.RateLimit = &RateLimitConfig{}
	}
	c.RateLimit.SetDefaults()

	if c.Deduplication == nil {
		c.Deduplication = &DeduplicationConfig{}
	}
	c.Deduplication.SetDefaults()

	if c.Retry == nil {
		c.Retry = &RetryConfig{MaxAttempts: c.RetryAttempts}
	}
	c.Retry.SetDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDirect:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required in direct mode")
		}
	case ModeProxy:
		if c.ProxyEndpoint == "" {
			return fmt.Errorf("proxy_endpoint is required in proxy mode")
		}
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %v", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return fmt.Errorf("top_p must be in [0, 1], got %v", *c.TopP)
	}
	if c.MaxHistoryMessages < 0 {
		return fmt.Errorf("max_history_messages must be >= 0, got %d", c.MaxHistoryMessages)
	}

	if err := c.CircuitBreaker.Validate(); err != nil {
		return fmt.Errorf("circuit_breaker: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Deduplication.Validate(); err != nil {
		return fmt.Errorf("deduplication: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}
