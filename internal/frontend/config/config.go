// Package config provides configuration loading for the front end.
// Configuration sources (in priority order): env vars > config file > defaults.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
	"github.com/marcus-qen/monfront/internal/frontend/timeperiod"
	"gopkg.in/yaml.v3"
)

// Config holds all front end configuration.
type Config struct {
	// Listen address (default ":8080")
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	// Data directory for the default SQLite database (default "/var/lib/monfront")
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// TLS settings
	TLSCert string `json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey  string `json:"tls_key,omitempty" yaml:"tls_key,omitempty"`

	// Signing key for redirect form data (hex-encoded, 64+ chars)
	SigningKey string `json:"signing_key,omitempty" yaml:"signing_key,omitempty"`

	Database  DatabaseConfig  `json:"database" yaml:"database"`
	API       APIConfig       `json:"api" yaml:"api"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Bootstrap BootstrapConfig `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" yaml:"log_level"`

	// OTLP gRPC endpoint for traces; empty disables tracing
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`

	// Longest time selector period, as a relative span ("2y")
	MaxPeriod string `json:"max_period" yaml:"max_period"`
	// IANA zone used to resolve time selector input
	Timezone string `json:"timezone" yaml:"timezone"`
}

// DatabaseConfig selects the store database.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// APIConfig points at the remote monitoring API.
type APIConfig struct {
	URL     string   `json:"url" yaml:"url"`
	Token   string   `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// SessionConfig configures browser sessions.
type SessionConfig struct {
	Lifetime        Duration `json:"lifetime" yaml:"lifetime"`
	CleanupSchedule string   `json:"cleanup_schedule" yaml:"cleanup_schedule"`
	SecureCookie    bool     `json:"secure_cookie" yaml:"secure_cookie"`
}

// BootstrapConfig creates the first account on an empty user store.
type BootstrapConfig struct {
	AdminUsername string `json:"admin_username,omitempty" yaml:"admin_username,omitempty"`
	AdminPassword string `json:"admin_password,omitempty" yaml:"admin_password,omitempty"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	Enabled                bool `json:"enabled" yaml:"enabled"`
	RequestsPerMinute      int  `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst                  int  `json:"burst" yaml:"burst"`
	AdminRequestsPerMinute int  `json:"admin_requests_per_minute" yaml:"admin_requests_per_minute"`
	AdminBurst             int  `json:"admin_burst" yaml:"admin_burst"`
	LoginAttemptsPerMinute int  `json:"login_attempts_per_minute" yaml:"login_attempts_per_minute"`

	// Action dispatch limits; zero disables a limit
	MaxConcurrentDispatches        int `json:"max_concurrent_dispatches" yaml:"max_concurrent_dispatches"`
	MaxConcurrentDispatchesPerUser int `json:"max_concurrent_dispatches_per_user" yaml:"max_concurrent_dispatches_per_user"`
	MaxDispatchesPerHourPerUser    int `json:"max_dispatches_per_hour_per_user,omitempty" yaml:"max_dispatches_per_hour_per_user,omitempty"`
}

// AuditConfig configures audit retention.
type AuditConfig struct {
	MemoryLimit   int      `json:"memory_limit" yaml:"memory_limit"`
	Retention     Duration `json:"retention" yaml:"retention"`
	PurgeInterval Duration `json:"purge_interval" yaml:"purge_interval"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DataDir:    "/var/lib/monfront",
		Database:   DatabaseConfig{Driver: dbutil.DriverSQLite},
		API:        APIConfig{Timeout: Duration(30 * time.Second)},
		Session: SessionConfig{
			Lifetime:        Duration(24 * time.Hour),
			CleanupSchedule: "@every 10m",
			SecureCookie:    true,
		},
		RateLimit: RateLimitConfig{
			Enabled:                true,
			RequestsPerMinute:      120,
			Burst:                  40,
			AdminRequestsPerMinute: 240,
			AdminBurst:             80,
			LoginAttemptsPerMinute: 10,

			MaxConcurrentDispatches:        64,
			MaxConcurrentDispatchesPerUser: 4,
		},
		Audit: AuditConfig{
			MemoryLimit:   1000,
			Retention:     Duration(90 * 24 * time.Hour),
			PurgeInterval: Duration(time.Hour),
		},
		LogLevel:  "info",
		MaxPeriod: "2y",
		Timezone:  "UTC",
	}
}

// Load reads configuration from a file, then overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if isYAML(path) {
			err = yaml.Unmarshal(data, &cfg)
		} else {
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"MONFRONT_LISTEN_ADDR":     &cfg.ListenAddr,
		"MONFRONT_DATA_DIR":        &cfg.DataDir,
		"MONFRONT_TLS_CERT":        &cfg.TLSCert,
		"MONFRONT_TLS_KEY":         &cfg.TLSKey,
		"MONFRONT_SIGNING_KEY":     &cfg.SigningKey,
		"MONFRONT_DB_DRIVER":       &cfg.Database.Driver,
		"MONFRONT_DB_DSN":          &cfg.Database.DSN,
		"MONFRONT_API_URL":         &cfg.API.URL,
		"MONFRONT_API_TOKEN":       &cfg.API.Token,
		"MONFRONT_SESSION_CLEANUP": &cfg.Session.CleanupSchedule,
		"MONFRONT_ADMIN_USERNAME":  &cfg.Bootstrap.AdminUsername,
		"MONFRONT_ADMIN_PASSWORD":  &cfg.Bootstrap.AdminPassword,
		"MONFRONT_LOG_LEVEL":       &cfg.LogLevel,
		"MONFRONT_OTLP_ENDPOINT":   &cfg.OTLPEndpoint,
		"MONFRONT_MAX_PERIOD":      &cfg.MaxPeriod,
		"MONFRONT_TIMEZONE":        &cfg.Timezone,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"MONFRONT_API_TIMEOUT":      &cfg.API.Timeout,
		"MONFRONT_SESSION_LIFETIME": &cfg.Session.Lifetime,
		"MONFRONT_AUDIT_RETENTION":  &cfg.Audit.Retention,
	}
	for env, dst := range durations {
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*dst = Duration(d)
		}
	}

	if v := os.Getenv("MONFRONT_SECURE_COOKIE"); v != "" {
		cfg.Session.SecureCookie = v == "true" || v == "1"
	}
	if v := os.Getenv("MONFRONT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
			cfg.RateLimit.Enabled = n > 0
		}
	}
	return nil
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return fmt.Errorf("api url required")
	}
	if c.SigningKey != "" {
		if _, err := c.SigningKeyBytes(); err != nil {
			return err
		}
	}
	loc, err := c.Location()
	if err != nil {
		return err
	}
	if _, err := timeperiod.New(loc).Duration(c.MaxPeriod); err != nil {
		return fmt.Errorf("max period %q: %w", c.MaxPeriod, err)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// SigningKeyBytes decodes the signing key. It returns nil when unset.
func (c Config) SigningKeyBytes() ([]byte, error) {
	if c.SigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("signing key must be hex: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DatabaseDSN returns the configured DSN, or the SQLite file in DataDir.
func (c Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.DataDir, "monfront.db")
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes configuration to a file in the format its extension implies.
func (c Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// HasTLS returns true if TLS is configured.
func (c Config) HasTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
