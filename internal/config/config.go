package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/miniclaw/agent"
	"github.com/hupe1980/miniclaw/logging"
	"github.com/hupe1980/miniclaw/model"
	"github.com/spf13/viper"
)

// Supported providers.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MINICLAW"

// ErrMissingAPIKey is returned by Validate when no key is configured for the
// selected provider.
var ErrMissingAPIKey = errors.New("api key not set")

// providerKeyEnv lists the conventional key variable per provider.
var providerKeyEnv = map[string]string{
	ProviderGroq:      "GROQ_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Config holds all console configuration.
type Config struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`

	MaxTurns             int `mapstructure:"max_turns"`
	MaxConsecutiveErrors int `mapstructure:"max_consecutive_errors"`
	MaxRepeatedCalls     int `mapstructure:"max_repeated_calls"`
	MaxParallelTools     int `mapstructure:"max_parallel_tools"`

	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// RetryConfig configures transport retries around the model client.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// RateLimitConfig paces model requests. RequestsPerMinute <= 0 disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// LogConfig selects the log sink format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider:             ProviderGroq,
		Temperature:          0.7,
		MaxTokens:            4096,
		MaxTurns:             agent.DefaultConfig.MaxTurns,
		MaxConsecutiveErrors: agent.DefaultConfig.MaxConsecutiveErrors,
		MaxRepeatedCalls:     agent.DefaultConfig.MaxRepeatedCalls,
		MaxParallelTools:     agent.DefaultConfig.MaxParallelTools,
		Retry:                RetryConfig{MaxAttempts: 3},
		RateLimit:            RateLimitConfig{RequestsPerMinute: 0, Burst: 1},
		Log:                  LogConfig{Level: "warn", Format: "pretty"},
	}
}

// Load resolves the configuration. An empty path skips the config file; a
// non-empty path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if cfg.APIKey == "" {
		if env, ok := providerKeyEnv[cfg.Provider]; ok {
			cfg.APIKey = os.Getenv(env)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("max_turns", d.MaxTurns)
	v.SetDefault("max_consecutive_errors", d.MaxConsecutiveErrors)
	v.SetDefault("max_repeated_calls", d.MaxRepeatedCalls)
	v.SetDefault("max_parallel_tools", d.MaxParallelTools)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	env, ok := providerKeyEnv[c.Provider]
	if !ok {
		return fmt.Errorf("invalid provider '%s', must be one of: groq, openai, anthropic", c.Provider)
	}

	if c.APIKey == "" {
		return fmt.Errorf("%w: set %s or %s_API_KEY", ErrMissingAPIKey, env, EnvPrefix)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return c.Agent().Validate()
}

// Agent returns the loop policy described by the configuration.
func (c *Config) Agent() agent.Config {
	temp := c.Temperature

	return agent.Config{
		MaxTurns:             c.MaxTurns,
		MaxConsecutiveErrors: c.MaxConsecutiveErrors,
		MaxRepeatedCalls:     c.MaxRepeatedCalls,
		MaxParallelTools:     c.MaxParallelTools,
		Model: model.Settings{
			Model:       c.Model,
			Temperature: &temp,
			MaxTokens:   c.MaxTokens,
		},
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Format = c.Log.Format

	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = lvl
	}

	return cfg
}
