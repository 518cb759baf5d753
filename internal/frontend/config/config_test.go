package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.ListenAddr)
	}
	if cfg.DataDir != "/var/lib/monfront" {
		t.Errorf("expected /var/lib/monfront, got %s", cfg.DataDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info, got %s", cfg.LogLevel)
	}
	if cfg.MaxPeriod != "2y" {
		t.Errorf("expected 2y, got %s", cfg.MaxPeriod)
	}
	if cfg.Session.Lifetime.Std() != 24*time.Hour {
		t.Errorf("expected 24h session lifetime, got %s", cfg.Session.Lifetime)
	}
	if cfg.DatabaseDSN() != filepath.Join("/var/lib/monfront", "monfront.db") {
		t.Errorf("unexpected default dsn %s", cfg.DatabaseDSN())
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{
		"listen_addr": ":9090",
		"data_dir": "/tmp/test",
		"database": {"driver": "postgres", "dsn": "postgres://localhost/monfront"},
		"api": {"url": "http://monitor.example/api/jsonrpc", "timeout": "5s"},
		"session": {"lifetime": 3600}
	}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.ListenAddr)
	}
	if cfg.Database.Driver != "postgres" || cfg.DatabaseDSN() != "postgres://localhost/monfront" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if cfg.API.Timeout.Std() != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.API.Timeout)
	}
	if cfg.Session.Lifetime.Std() != time.Hour {
		t.Errorf("expected numeric seconds to parse, got %s", cfg.Session.Lifetime)
	}
	if cfg.Session.CleanupSchedule != "@every 10m" {
		t.Errorf("expected default cleanup schedule to survive, got %q", cfg.Session.CleanupSchedule)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
listen_addr: ":7000"
api:
  url: http://monitor.example/api/jsonrpc
  timeout: 10s
session:
  lifetime: 2h
  secure_cookie: false
rate_limit:
  enabled: true
  requests_per_minute: 30
audit:
  retention: 720h
max_period: 1y
timezone: Etc/UTC
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7000" || cfg.API.Timeout.Std() != 10*time.Second {
		t.Errorf("unexpected yaml config: %+v", cfg)
	}
	if cfg.Session.Lifetime.Std() != 2*time.Hour || cfg.Session.SecureCookie {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.Audit.Retention.Std() != 720*time.Hour {
		t.Errorf("unexpected nested config: %+v %+v", cfg.RateLimit, cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("session:\n  lifetime: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"listen_addr": ":9090", "api": {"url": "http://file"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MONFRONT_LISTEN_ADDR", ":7070")
	t.Setenv("MONFRONT_API_URL", "http://env")
	t.Setenv("MONFRONT_SESSION_LIFETIME", "90m")
	t.Setenv("MONFRONT_SECURE_COOKIE", "false")
	t.Setenv("MONFRONT_RATE_LIMIT", "0")
	t.Setenv("MONFRONT_DB_DRIVER", "mysql")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7070" || cfg.API.URL != "http://env" {
		t.Errorf("env must override file: %s %s", cfg.ListenAddr, cfg.API.URL)
	}
	if cfg.Session.Lifetime.Std() != 90*time.Minute || cfg.Session.SecureCookie {
		t.Errorf("unexpected session overrides: %+v", cfg.Session)
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limit 0 should disable throttling")
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("expected mysql driver, got %s", cfg.Database.Driver)
	}

	t.Setenv("MONFRONT_API_TIMEOUT", "never")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "MONFRONT_API_TIMEOUT") {
		t.Fatalf("expected env duration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.API.URL = "http://zbx"
	valid.SigningKey = strings.Repeat("ab", 32)
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	cases := map[string]func(*Config){
		"missing api url": func(c *Config) { c.API.URL = "" },
		"non-hex key":     func(c *Config) { c.SigningKey = "zz" },
		"short key":       func(c *Config) { c.SigningKey = "abcd" },
		"bad max period":  func(c *Config) { c.MaxPeriod = "forever" },
		"bad timezone":    func(c *Config) { c.Timezone = "Mars/Olympus" },
		"half tls":        func(c *Config) { c.TLSCert = "cert.pem" },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		path := filepath.Join(t.TempDir(), name)
		cfg := Default()
		cfg.API.URL = "http://zbx"
		cfg.Session.Lifetime = Duration(45 * time.Minute)
		if err := cfg.Save(path); err != nil {
			t.Fatal(err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if loaded.API.URL != "http://zbx" || loaded.Session.Lifetime.Std() != 45*time.Minute {
			t.Errorf("%s: round trip mismatch: %+v", name, loaded)
		}
	}
}
