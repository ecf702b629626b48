package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "5555", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Empty(t, cfg.Server.BaseURL)

	// Storage config
	assert.Equal(t, "./packages", cfg.Storage.Root)
	assert.Equal(t, DuplicateIgnore, cfg.Storage.DuplicatePolicy)
	assert.Equal(t, MissingEmptyArray, cfg.Storage.MissingPackageResponse)

	// Auth config
	assert.Equal(t, "none", cfg.Auth.Mode)
	assert.Equal(t, 2, cfg.Auth.MinPasswordScore)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 720*time.Hour, cfg.Auth.RememberTTL)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                     "9000",
		"HOST":                     "127.0.0.1",
		"BASE_URL":                 "https://nuget.example.com",
		"STORAGE_ROOT":             "/var/lib/packsmith",
		"DUPLICATE_POLICY":         "overwrite",
		"MISSING_PACKAGE_RESPONSE": "not-found",
		"AUTH_MODE":                "publish",
		"MIN_PASSWORD_SCORE":       "3",
		"SESSION_TTL":              "1h",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
		"RATE_LIMIT_RPS":           "500",
		"RATE_LIMIT_ENABLED":       "false",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "https://nuget.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "/var/lib/packsmith", cfg.Storage.Root)
	assert.Equal(t, DuplicateOverwrite, cfg.Storage.DuplicatePolicy)
	assert.Equal(t, MissingNotFound, cfg.Storage.MissingPackageResponse)
	assert.Equal(t, "publish", cfg.Auth.Mode)
	assert.Equal(t, 3, cfg.Auth.MinPasswordScore)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithYAMLOverlay(t *testing.T) {
	err := os.Setenv("PORT", "9000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: "7777"
storage:
  duplicatePolicy: error
auth:
  mode: full
`), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)

	// File values win over environment.
	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, DuplicateError, cfg.Storage.DuplicatePolicy)
	assert.Equal(t, "full", cfg.Auth.Mode)

	// Untouched settings keep their defaults.
	assert.Equal(t, "./packages", cfg.Storage.Root)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		wantOK bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad duplicate policy", func(c *Config) { c.Storage.DuplicatePolicy = "merge" }, false},
		{"bad missing response", func(c *Config) { c.Storage.MissingPackageResponse = "teapot" }, false},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "maybe" }, false},
		{"score too high", func(c *Config) { c.Auth.MinPasswordScore = 5 }, false},
		{"score negative", func(c *Config) { c.Auth.MinPasswordScore = -1 }, false},
		{"empty storage root", func(c *Config) { c.Storage.Root = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
