package provider

import (
	"time"

	"letterworks/pkg/clients"
	"letterworks/pkg/config"
)

// Config holds all provider settings, collected once at startup and passed
// by dependency injection. Nothing in this package reads the environment
// mid-call.
type Config struct {
	// Primary is the research-augmented drafting backend.
	PrimaryURL     string
	PrimaryAPIKey  string
	PrimaryTimeout time.Duration

	// Fallback is the direct completion backend, used only when the
	// primary is unconfigured or failed.
	FallbackURL     string
	FallbackAPIKey  string
	FallbackModel   string
	FallbackTimeout time.Duration

	// MinContentLength rejects short/empty responses even when the
	// transport succeeded.
	MinContentLength int

	// Retry applies to the primary provider only (5xx responses).
	Retry clients.RetryConfig
}

// LoadConfig reads provider settings from the environment.
func LoadConfig() Config {
	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = config.GetEnvInt("PRIMARY_PROVIDER_MAX_RETRIES", 3)
	retry.BaseDelay = config.GetEnvDuration("PRIMARY_PROVIDER_RETRY_BASE_DELAY", 500*time.Millisecond)
	retry.RetryFunc = RetryOnServerError

	return Config{
		PrimaryURL:       config.GetEnv("PRIMARY_PROVIDER_URL", ""),
		PrimaryAPIKey:    config.GetEnv("PRIMARY_PROVIDER_API_KEY", ""),
		PrimaryTimeout:   config.GetEnvDuration("PRIMARY_PROVIDER_TIMEOUT", 45*time.Second),
		FallbackURL:      config.GetEnv("FALLBACK_PROVIDER_URL", ""),
		FallbackAPIKey:   config.GetEnv("FALLBACK_PROVIDER_API_KEY", ""),
		FallbackModel:    config.GetEnv("FALLBACK_PROVIDER_MODEL", ""),
		FallbackTimeout:  config.GetEnvDuration("FALLBACK_PROVIDER_TIMEOUT", 30*time.Second),
		MinContentLength: config.GetEnvInt("PROVIDER_MIN_CONTENT_LENGTH", 100),
		Retry:            retry,
	}
}
