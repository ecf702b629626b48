package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Duplicate package policies applied when a publish targets an existing
// (id, version).
const (
	DuplicateIgnore    = "ignore"
	DuplicateOverwrite = "overwrite"
	DuplicateError     = "error"
)

// Responses for version enumeration of an unknown package.
const (
	MissingEmptyArray = "empty-array"
	MissingNotFound   = "not-found"
)

// Config holds all server configuration. It is built once at startup and
// passed explicitly into each component constructor.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
	Port string `envconfig:"PORT" default:"5555" yaml:"port"`

	// BaseURL, when set, is used verbatim for every externally visible
	// link instead of deriving one from the request.
	BaseURL string `envconfig:"BASE_URL" yaml:"baseUrl"`

	// TrustedProxies lists peer IPs or CIDRs whose forwarding headers
	// are honored when deriving the base URL.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" yaml:"trustedProxies"`
}

// StorageConfig holds package store settings.
type StorageConfig struct {
	Root                   string `envconfig:"STORAGE_ROOT" default:"./packages" yaml:"root"`
	DuplicatePolicy        string `envconfig:"DUPLICATE_POLICY" default:"ignore" yaml:"duplicatePolicy"`
	MissingPackageResponse string `envconfig:"MISSING_PACKAGE_RESPONSE" default:"empty-array" yaml:"missingPackageResponse"`
}

// AuthConfig holds access control settings.
type AuthConfig struct {
	// Mode is one of "none", "publish" or "full".
	Mode string `envconfig:"AUTH_MODE" default:"none" yaml:"mode"`

	// MinPasswordScore is the minimum acceptable strength score (0-4)
	// for new passwords.
	MinPasswordScore int `envconfig:"MIN_PASSWORD_SCORE" default:"2" yaml:"minPasswordScore"`

	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"2h" yaml:"sessionTtl"`
	RememberTTL time.Duration `envconfig:"REMEMBER_TTL" default:"720h" yaml:"rememberTtl"`

	// InitialAdmin seeds a first admin account when the user store is
	// empty, so a locked-down server can be bootstrapped.
	InitialAdmin         string `envconfig:"INITIAL_ADMIN" yaml:"initialAdmin"`
	InitialAdminPassword string `envconfig:"INITIAL_ADMIN_PASSWORD" yaml:"initialAdminPassword"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load builds the configuration from environment variables, then overlays
// the optional YAML file (file values win over environment). The result is
// validated before use.
func Load(file string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "5555",
		},
		Storage: StorageConfig{
			Root:                   "./packages",
			DuplicatePolicy:        DuplicateIgnore,
			MissingPackageResponse: MissingEmptyArray,
		},
		Auth: AuthConfig{
			Mode:             "none",
			MinPasswordScore: 2,
			SessionTTL:       2 * time.Hour,
			RememberTTL:      720 * time.Hour,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate checks enum-valued settings.
func (c *Config) Validate() error {
	switch c.Storage.DuplicatePolicy {
	case DuplicateIgnore, DuplicateOverwrite, DuplicateError:
	default:
		return fmt.Errorf("invalid duplicate policy %q", c.Storage.DuplicatePolicy)
	}

	switch c.Storage.MissingPackageResponse {
	case MissingEmptyArray, MissingNotFound:
	default:
		return fmt.Errorf("invalid missing package response %q", c.Storage.MissingPackageResponse)
	}

	switch c.Auth.Mode {
	case "none", "publish", "full":
	default:
		return fmt.Errorf("invalid auth mode %q", c.Auth.Mode)
	}

	if c.Auth.MinPasswordScore < 0 || c.Auth.MinPasswordScore > 4 {
		return fmt.Errorf("minimum password score must be 0-4, got %d", c.Auth.MinPasswordScore)
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must not be empty")
	}
	return nil
}
