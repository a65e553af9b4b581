// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// CORS
	AllowedOrigins []string

	// Settlement policy defaults. Runtime values come from the settings
	// provider; these seed it and back it when a key is absent.
	DisputeWindowHours   int
	SellerProtectionDays int
	DefaultFeePercent    string // e.g. "5"

	// Admin step-up
	LargeAmountThreshold string // USD; at/above this a typed phrase is required

	// Settlement scheduler
	AutoCompleteInterval    string // duration string, e.g. "15m"
	ReleaseEarningsInterval string // duration string, e.g. "1h"

	// Stripe top-ups (optional; deposits fall back to the direct entry point)
	StripeSecretKey     string
	StripeWebhookSecret string

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort                 = "8080"
	DefaultEnv                  = "development"
	DefaultLogLevel             = "info"
	DefaultDisputeWindowHours   = 24
	DefaultSellerProtectionDays = 10
	DefaultFeePercent           = "5"
	DefaultLargeAmount          = "1000"
	DefaultAutoCompleteEvery    = "15m"
	DefaultReleaseEvery         = "1h"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		AllowedOrigins:          splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DisputeWindowHours:      getEnvInt("DISPUTE_WINDOW_HOURS", DefaultDisputeWindowHours),
		SellerProtectionDays:    getEnvInt("SELLER_PROTECTION_DAYS", DefaultSellerProtectionDays),
		DefaultFeePercent:       getEnv("DEFAULT_FEE_PERCENT", DefaultFeePercent),
		LargeAmountThreshold:    getEnv("LARGE_AMOUNT_THRESHOLD", DefaultLargeAmount),
		AutoCompleteInterval:    getEnv("AUTO_COMPLETE_INTERVAL", DefaultAutoCompleteEvery),
		ReleaseEarningsInterval: getEnv("RELEASE_EARNINGS_INTERVAL", DefaultReleaseEvery),
		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.DisputeWindowHours <= 0 {
		return fmt.Errorf("DISPUTE_WINDOW_HOURS must be positive")
	}
	if c.SellerProtectionDays <= 0 {
		return fmt.Errorf("SELLER_PROTECTION_DAYS must be positive")
	}
	if c.StripeWebhookSecret != "" && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when STRIPE_WEBHOOK_SECRET is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
