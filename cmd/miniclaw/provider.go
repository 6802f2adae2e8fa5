package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/miniclaw/internal/config"
	"github.com/hupe1980/miniclaw/model"
	modelanthropic "github.com/hupe1980/miniclaw/model/anthropic"
	modelopenai "github.com/hupe1980/miniclaw/model/openai"
)

// newModel builds the provider client and wraps it with request pacing.
// Transport retries are left to the SDK client, which only retries
// transient statuses; the loop itself never retries.
func newModel(cfg *config.Config) (model.Model, error) {
	var m model.Model

	retries := max(cfg.Retry.MaxAttempts-1, 0)

	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		openaiOpts := func(o *modelopenai.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.MaxRetries = retries
		}

		if cfg.Provider == config.ProviderGroq {
			m = modelopenai.NewGroqModel(openaiOpts)
		} else {
			m = modelopenai.NewModel(openaiOpts)
		}
	case config.ProviderAnthropic:
		m = modelanthropic.NewModel(func(o *modelanthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.MaxRetries = retries
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	return model.WithRateLimit(m, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst), nil
}
