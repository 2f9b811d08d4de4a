// Package usage records per-request token usage and persists it to SQLite or PostgreSQL.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/nghyane/msgproxy/internal/config"
)

// Backend defines the persistence contract for usage records.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Enqueue adds a record to the write queue without blocking.
	Enqueue(record Record)

	// Flush writes queued records synchronously.
	Flush(ctx context.Context) error

	QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error)
	QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error)
	QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error)
	QueryEndpointStats(ctx context.Context, since time.Time) ([]EndpointStats, error)

	// Cleanup removes records older than before.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Start begins the write loop and the retention schedule.
	Start() error

	// Stop flushes pending writes and closes the store.
	Stop() error
}

// BackendConfig holds parameters for backend initialization.
type BackendConfig struct {
	// DSN is sqlite://path or postgres://...
	DSN           string
	BatchSize     int
	FlushInterval time.Duration
	RetentionDays int
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultRetentionDays = 30
	queueCapacity        = 1000
)

// BackendConfigFrom maps the usage section of the config file.
func BackendConfigFrom(cfg config.UsageConfig) BackendConfig {
	return BackendConfig{
		DSN:           cfg.DSN,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval.Std(),
		RetentionDays: cfg.RetentionDays,
	}
}

func (c BackendConfig) withDefaults() BackendConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	return c
}

// NewBackend creates the backend selected by the DSN scheme.
func NewBackend(cfg BackendConfig) (Backend, error) {
	parsed, err := config.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("DSN is required (use sqlite:// or postgres://)")
	}

	switch parsed.Backend {
	case "postgres":
		return NewPostgresBackend(parsed.URL, cfg)
	case "sqlite":
		return NewSQLiteBackend(parsed.Path, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", parsed.Backend)
	}
}
