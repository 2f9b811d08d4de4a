package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_YAML(t *testing.T) {
	data := []byte(`
port: 9000
debug: true
backend:
  base-url: "https://llm.internal/v1/"
  api-key: " sk-test "
  headers:
    x-team: infra
    empty: ""
  proxy-url: socks5://127.0.0.1:1080
  idle-timeout: 45s
rate-limit:
  requests-per-second: 2.5
  burst: 5
retry:
  max-retries: 3
  base-delay: 250ms
  max-delay: 2s
catalog:
  refresh-schedule: "@every 15m"
  static-models:
    - id: local-model
    - id: "  "
model-aliases:
  fast: gpt-4o-mini
usage:
  dsn: sqlite://~/.msgproxy/usage.db
`)
	cfg, err := Parse(data, ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Port != 9000 || !cfg.Debug {
		t.Errorf("port/debug = %d/%v", cfg.Port, cfg.Debug)
	}
	if cfg.Backend.BaseURL != "https://llm.internal/v1" {
		t.Errorf("base-url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.ResolveAPIKey() != "sk-test" {
		t.Errorf("api key = %q", cfg.Backend.ResolveAPIKey())
	}
	if len(cfg.Backend.Headers) != 1 || cfg.Backend.Headers["X-Team"] != "infra" {
		t.Errorf("headers = %v", cfg.Backend.Headers)
	}
	if cfg.Backend.IdleTimeout.Std() != 45*time.Second {
		t.Errorf("idle-timeout = %s", cfg.Backend.IdleTimeout)
	}
	if cfg.Backend.Timeout.Std() != 10*time.Minute {
		t.Errorf("unset timeout should keep default, got %s", cfg.Backend.Timeout)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Errorf("rate-limit = %+v", cfg.RateLimit)
	}
	if cfg.Retry.BaseDelay.Std() != 250*time.Millisecond || cfg.Retry.MaxRetries != 3 {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if len(cfg.Catalog.StaticModels) != 1 || cfg.Catalog.StaticModels[0].ID != "local-model" {
		t.Errorf("static models = %+v", cfg.Catalog.StaticModels)
	}
	if cfg.ModelAliases["fast"] != "gpt-4o-mini" {
		t.Errorf("aliases = %v", cfg.ModelAliases)
	}
	if !cfg.Breaker.Enabled || cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("breaker defaults lost: %+v", cfg.Breaker)
	}
}

func TestParse_JSONC(t *testing.T) {
	data := []byte(`{
		// backend lives on the LAN
		"port": 8400,
		"backend": {"base-url": "http://10.0.0.5:8080", "timeout": "90s",},
		"model-families": {"gemini": "gemini-2.5-pro"},
	}`)
	cfg, err := Parse(data, ".jsonc")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 8400 || cfg.Backend.Timeout.Std() != 90*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ModelFamilies["gemini"] != "gemini-2.5-pro" {
		t.Errorf("families = %v", cfg.ModelFamilies)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"no base url", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base-url"},
		{"relative base url", func(c *Config) { c.Backend.BaseURL = "llm.local/v1" }, "backend.base-url"},
		{"bad proxy scheme", func(c *Config) { c.Backend.ProxyURL = "ftp://proxy:21" }, "backend.proxy-url"},
		{"burst missing", func(c *Config) { c.RateLimit.RequestsPerSecond = 1 }, "rate-limit.burst"},
		{"delay order", func(c *Config) { c.Retry.BaseDelay = Duration(time.Minute) }, "retry.base-delay"},
		{"breaker threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }, "breaker.failure-threshold"},
		{"bad dsn", func(c *Config) { c.Usage.DSN = "mysql://x" }, "usage.dsn"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"empty alias target", func(c *Config) { c.ModelAliases = map[string]string{"a": " "} }, "model-aliases"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mut(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	if err := NewDefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		backend string
		path    string
		wantErr bool
	}{
		{"", "", "", false},
		{"sqlite:///var/lib/usage.db", "sqlite", "/var/lib/usage.db", false},
		{"sqlite:usage.db", "sqlite", "usage.db", false},
		{"postgres://u:p@db/usage", "postgres", "", false},
		{"postgresql://db/usage", "postgres", "", false},
		{"sqlite://", "", "", true},
		{"mysql://u:secret@db/x", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := ParseDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDSN(%q) err = %v", tt.dsn, err)
			}
			if tt.backend == "" {
				if got != nil {
					t.Errorf("ParseDSN(%q) = %+v, want nil", tt.dsn, got)
				}
				return
			}
			if got.Backend != tt.backend || got.Path != tt.path {
				t.Errorf("ParseDSN(%q) = %+v", tt.dsn, got)
			}
		})
	}

	if _, err := ParseDSN("mysql://u:secret@db/x"); err == nil || strings.Contains(err.Error(), "secret") {
		t.Errorf("error should redact credentials: %v", err)
	}
}

func TestLoadConfigOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigOptional(filepath.Join(dir, "missing.yaml"), true)
	if err != nil || cfg == nil || cfg.Port != NewDefaultConfig().Port {
		t.Fatalf("missing optional file = %+v, %v", cfg, err)
	}
	if _, err := LoadConfigOptional(filepath.Join(dir, "missing.yaml"), false); err == nil {
		t.Error("missing required file should fail")
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, GenerateDefaultConfigYAML(), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("generated default config should load: %v", err)
	}
	if cfg.Backend.IdleTimeout.Std() != 2*time.Minute {
		t.Errorf("idle-timeout round trip = %s", cfg.Backend.IdleTimeout)
	}
}
