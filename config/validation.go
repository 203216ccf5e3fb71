package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig checks if the configuration meets the requirements for its environment
func ValidateConfig(cfg *Config) error {
	var errs []string
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg}.Error())
	}

	if cfg.ServerPort == "" {
		add("SERVER_PORT", "is required")
	}
	if cfg.JWTSecret == "" {
		add("JWT_SECRET", "is required")
	}
	if cfg.Environment != Test && cfg.DBPassword == "" {
		add("DB_PASSWORD", "is required")
	}
	if cfg.Environment == Production && cfg.RedisPassword == "" && cfg.RedisURL == "" {
		add("REDIS_PASSWORD", "is required in production")
	}

	switch cfg.Generation.Provider {
	case ProviderOpenAI, ProviderGemini:
		if cfg.Generation.APIKey == "" {
			add("GENERATION_API_KEY", "is required for provider "+cfg.Generation.Provider)
		}
	case ProviderFixture:
		if cfg.Environment == Production {
			add("GENERATION_PROVIDER", "fixture provider is not allowed in production")
		}
	default:
		add("GENERATION_PROVIDER", fmt.Sprintf("unknown provider %q", cfg.Generation.Provider))
	}
	if cfg.Generation.MaxTokens <= 0 {
		add("GENERATION_MAX_TOKENS", "must be > 0")
	}
	if cfg.Generation.MaxAttempts <= 0 {
		add("GENERATION_MAX_ATTEMPTS", "must be > 0")
	}
	if cfg.Generation.InputCostPerMillion < 0 || cfg.Generation.OutputCostPerMillion < 0 {
		add("GENERATION_COST", "rates must not be negative")
	}

	if cfg.Queue.Concurrency <= 0 {
		add("GENERATION_CONCURRENCY", "must be > 0")
	}
	if cfg.Queue.AvgSecondsPerPlan <= 0 {
		add("GENERATION_AVG_SECONDS", "must be > 0")
	}
	if cfg.Queue.ETACapMinutes < 0 {
		add("GENERATION_ETA_CAP_MINUTES", "must not be negative")
	}
	if cfg.Queue.StaleThreshold <= 0 {
		add("GENERATION_STALE_THRESHOLD", "must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}
