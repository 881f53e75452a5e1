package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML config file, expands environment references in
// string fields, applies defaults and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Load parses YAML config bytes.
func Load(data []byte) (*Config, error) {
	LoadDotEnv()

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.APIKey = ExpandEnvVars(cfg.APIKey)
	cfg.AuthToken = ExpandEnvVars(cfg.AuthToken)
	cfg.ProxyEndpoint = ExpandEnvVars(cfg.ProxyEndpoint)

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
