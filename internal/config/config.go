// Package config defines the proxy configuration and its file formats.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nghyane/msgproxy/internal/json"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Config is the full proxy configuration.
type Config struct {
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	Debug         bool   `yaml:"debug" json:"debug"`
	LoggingToFile bool   `yaml:"logging-to-file" json:"logging-to-file"`
	LogDir        string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// DefaultMaxTokens fills max_tokens when a client omits it.
	DefaultMaxTokens int `yaml:"default-max-tokens,omitempty" json:"default-max-tokens,omitempty"`

	Backend   BackendConfig   `yaml:"backend" json:"backend"`
	RateLimit RateLimitConfig `yaml:"rate-limit" json:"rate-limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker" json:"breaker"`
	Catalog   CatalogConfig   `yaml:"catalog" json:"catalog"`

	ModelAliases  map[string]string `yaml:"model-aliases,omitempty" json:"model-aliases,omitempty"`
	ModelFamilies map[string]string `yaml:"model-families,omitempty" json:"model-families,omitempty"`

	Usage   UsageConfig   `yaml:"usage" json:"usage"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// RateLimitConfig is token-bucket admission control. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests-per-second" json:"requests-per-second"`
	Burst             int     `yaml:"burst" json:"burst"`
	// Wait queues requests until a token is available instead of rejecting them.
	Wait bool `yaml:"wait" json:"wait"`
}

type RetryConfig struct {
	MaxRetries int      `yaml:"max-retries" json:"max-retries"`
	BaseDelay  Duration `yaml:"base-delay" json:"base-delay"`
	MaxDelay   Duration `yaml:"max-delay" json:"max-delay"`
}

type BreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32   `yaml:"failure-threshold" json:"failure-threshold"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
}

type CatalogConfig struct {
	// RefreshSchedule is a cron expression; empty uses the registry default.
	RefreshSchedule string        `yaml:"refresh-schedule,omitempty" json:"refresh-schedule,omitempty"`
	StaticModels    []StaticModel `yaml:"static-models,omitempty" json:"static-models,omitempty"`
}

// StaticModel is a model served even when the backend does not list it.
type StaticModel struct {
	ID                 string   `yaml:"id" json:"id"`
	OwnedBy            string   `yaml:"owned-by,omitempty" json:"owned-by,omitempty"`
	SupportedEndpoints []string `yaml:"supported-endpoints,omitempty" json:"supported-endpoints,omitempty"`
}

type UsageConfig struct {
	// DSN selects the store: sqlite://path or postgres://... Empty disables persistence.
	DSN           string   `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	BatchSize     int      `yaml:"batch-size,omitempty" json:"batch-size,omitempty"`
	FlushInterval Duration `yaml:"flush-interval,omitempty" json:"flush-interval,omitempty"`
	RetentionDays int      `yaml:"retention-days,omitempty" json:"retention-days,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// NewDefaultConfig returns the configuration used when no file exists.
func NewDefaultConfig() *Config {
	return &Config{
		Host:             "127.0.0.1",
		Port:             8318,
		DefaultMaxTokens: 4096,
		Backend: BackendConfig{
			BaseURL:     "https://api.githubcopilot.com",
			APIKeyEnv:   "MSGPROXY_API_KEY",
			Timeout:     Duration(10 * time.Minute),
			IdleTimeout: Duration(2 * time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  Duration(500 * time.Millisecond),
			MaxDelay:   Duration(10 * time.Second),
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          Duration(30 * time.Second),
		},
		Usage: UsageConfig{
			BatchSize:     100,
			FlushInterval: Duration(5 * time.Second),
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// LoadConfig reads and validates a config file. .json and .jsonc files are parsed as JSON
// with comments and trailing commas; everything else is YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigOptional is LoadConfig, but a missing file yields defaults when optional is set.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil && optional && errors.Is(err, os.ErrNotExist) {
		return NewDefaultConfig(), nil
	}
	return cfg, err
}

// Parse decodes data over the defaults, then sanitizes and validates it.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := NewDefaultConfig()
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(std, cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize trims and normalizes fields in place.
func (cfg *Config) Sanitize() {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.LogDir = strings.TrimSpace(cfg.LogDir)
	cfg.Backend.Sanitize()
	cfg.Catalog.RefreshSchedule = strings.TrimSpace(cfg.Catalog.RefreshSchedule)
	cfg.Metrics.Path = strings.TrimSpace(cfg.Metrics.Path)
	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	models := cfg.Catalog.StaticModels[:0]
	for _, m := range cfg.Catalog.StaticModels {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID != "" {
			models = append(models, m)
		}
	}
	cfg.Catalog.StaticModels = models
}

// Validate reports the first invalid field as a *ValidationError.
func (cfg *Config) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return &ValidationError{Field: "port", Message: fmt.Sprintf("must be 1-65535, got %d", cfg.Port)}
	}
	if err := cfg.Backend.Validate(); err != nil {
		return err
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return &ValidationError{Field: "rate-limit.requests-per-second", Message: "must not be negative"}
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst < 1 {
		return &ValidationError{Field: "rate-limit.burst", Message: "must be at least 1 when rate limiting is enabled"}
	}
	if cfg.Retry.MaxRetries < 0 {
		return &ValidationError{Field: "retry.max-retries", Message: "must not be negative"}
	}
	if cfg.Retry.MaxDelay > 0 && cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		return &ValidationError{Field: "retry.base-delay", Message: "must not exceed retry.max-delay"}
	}
	if cfg.Breaker.Enabled && cfg.Breaker.FailureThreshold == 0 {
		return &ValidationError{Field: "breaker.failure-threshold", Message: "must be at least 1 when the breaker is enabled"}
	}
	if cfg.DefaultMaxTokens < 0 {
		return &ValidationError{Field: "default-max-tokens", Message: "must not be negative"}
	}
	if cfg.Usage.DSN != "" {
		if _, err := ParseDSN(cfg.Usage.DSN); err != nil {
			return &ValidationError{Field: "usage.dsn", Message: err.Error()}
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return &ValidationError{Field: "metrics.path", Message: "must start with /"}
	}
	for alias, target := range cfg.ModelAliases {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(target) == "" {
			return &ValidationError{Field: "model-aliases", Message: "aliases and targets must be non-empty"}
		}
	}
	return nil
}

// Addr is the listen address.
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// ValidationError is a configuration error tied to one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if errNum := json.Unmarshal(data, &n); errNum != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// GenerateDefaultConfigYAML renders the default configuration as a starter file.
func GenerateDefaultConfigYAML() []byte {
	data, err := yaml.Marshal(NewDefaultConfig())
	if err != nil {
		return nil
	}
	return append([]byte("# msgproxy configuration\n"), data...)
}
