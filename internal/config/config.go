// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Model bundle
	ModelBundleDir string // Directory with the trained fraud model; empty selects the heuristic

	// Risk thresholds
	ThresholdLow      float64
	ThresholdModerate float64
	ThresholdHigh     float64

	// Cache TTLs
	ProfileCacheTTL    time.Duration
	ReputationCacheTTL time.Duration

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)

	// Security
	RateLimitRPS int
}

const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultRateLimit = 100

	DefaultThresholdLow      = 0.30
	DefaultThresholdModerate = 0.60
	DefaultThresholdHigh     = 0.80

	DefaultProfileCacheTTL    = 5 * time.Minute
	DefaultReputationCacheTTL = 10 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ModelBundleDir:     os.Getenv("MODEL_BUNDLE_DIR"),
		ThresholdLow:       getEnvFloat("RISK_THRESHOLD_LOW", DefaultThresholdLow),
		ThresholdModerate:  getEnvFloat("RISK_THRESHOLD_MODERATE", DefaultThresholdModerate),
		ThresholdHigh:      getEnvFloat("RISK_THRESHOLD_HIGH", DefaultThresholdHigh),
		ProfileCacheTTL:    getEnvDuration("PROFILE_CACHE_TTL", DefaultProfileCacheTTL),
		ReputationCacheTTL: getEnvDuration("REPUTATION_CACHE_TTL", DefaultReputationCacheTTL),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:       int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if !(c.ThresholdLow < c.ThresholdModerate && c.ThresholdModerate < c.ThresholdHigh) {
		return fmt.Errorf("risk thresholds must be strictly increasing: low=%v moderate=%v high=%v",
			c.ThresholdLow, c.ThresholdModerate, c.ThresholdHigh)
	}
	if c.ThresholdLow <= 0 || c.ThresholdHigh >= 1 {
		return fmt.Errorf("risk thresholds must stay inside (0, 1)")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
