package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultThresholdLow, cfg.ThresholdLow)
	assert.Equal(t, DefaultThresholdModerate, cfg.ThresholdModerate)
	assert.Equal(t, DefaultThresholdHigh, cfg.ThresholdHigh)
	assert.Equal(t, DefaultProfileCacheTTL, cfg.ProfileCacheTTL)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "RISK_THRESHOLD_MODERATE", "0.55")
	setEnv(t, "PROFILE_CACHE_TTL", "2m")
	setEnv(t, "MODEL_BUNDLE_DIR", "/opt/models/fraud-v1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.55, cfg.ThresholdModerate)
	assert.Equal(t, 2*time.Minute, cfg.ProfileCacheTTL)
	assert.Equal(t, "/opt/models/fraud-v1", cfg.ModelBundleDir)
}

func TestLoad_InvalidThresholdOrder(t *testing.T) {
	setEnv(t, "RISK_THRESHOLD_MODERATE", "0.9") // above high

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				ThresholdLow: 0.3, ThresholdModerate: 0.6, ThresholdHigh: 0.8,
				RateLimitRPS: 100,
			},
			wantErr: "",
		},
		{
			name: "thresholds out of order",
			config: Config{
				ThresholdLow: 0.6, ThresholdModerate: 0.3, ThresholdHigh: 0.8,
				RateLimitRPS: 100,
			},
			wantErr: "strictly increasing",
		},
		{
			name: "threshold at one",
			config: Config{
				ThresholdLow: 0.3, ThresholdModerate: 0.6, ThresholdHigh: 1.0,
				RateLimitRPS: 100,
			},
			wantErr: "inside (0, 1)",
		},
		{
			name: "zero rate limit",
			config: Config{
				ThresholdLow: 0.3, ThresholdModerate: 0.6, ThresholdHigh: 0.8,
				RateLimitRPS: 0,
			},
			wantErr: "RATE_LIMIT_RPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")
	setEnv(t, "TEST_DUR_BAD", "soon")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_BAD", time.Minute))
}
