package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists usage to PostgreSQL through a pgx pool.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	queue *writeQueue
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id BIGSERIAL PRIMARY KEY,
	model TEXT NOT NULL,
	requested_model TEXT NOT NULL DEFAULT '',
	endpoint TEXT NOT NULL DEFAULT '',
	stream BOOLEAN NOT NULL DEFAULT FALSE,
	status INTEGER NOT NULL DEFAULT 0,
	failed BOOLEAN NOT NULL DEFAULT FALSE,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cached_tokens BIGINT NOT NULL DEFAULT 0,
	total_tokens BIGINT NOT NULL DEFAULT 0,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	requested_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_requested_at ON usage_records(requested_at);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
`

var usageColumns = []string{
	"model", "requested_model", "endpoint", "stream", "status", "failed",
	"input_tokens", "output_tokens", "cached_tokens", "total_tokens",
	"latency_ms", "requested_at",
}

// NewPostgresBackend connects, pings and creates the schema.
func NewPostgresBackend(dsn string, cfg BackendConfig) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	b := &PostgresBackend{pool: pool}
	b.queue = newWriteQueue(cfg, b.writeBatch, b.Cleanup)
	return b, nil
}

func (b *PostgresBackend) Start() error { return b.queue.start() }

func (b *PostgresBackend) Stop() error {
	if b == nil {
		return nil
	}
	b.queue.stop()
	b.pool.Close()
	return nil
}

func (b *PostgresBackend) Enqueue(record Record) {
	if b == nil {
		return
	}
	b.queue.enqueue(record)
}

func (b *PostgresBackend) Flush(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.queue.flush(ctx)
}

func (b *PostgresBackend) QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error) {
	row := b.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT failed),
			COUNT(*) FILTER (WHERE failed),
			COALESCE(SUM(input_tokens), 0)::BIGINT,
			COALESCE(SUM(output_tokens), 0)::BIGINT,
			COALESCE(SUM(total_tokens), 0)::BIGINT
		FROM usage_records
		WHERE requested_at >= $1
	`, since)

	var s AggregatedStats
	if err := row.Scan(&s.TotalRequests, &s.SuccessCount, &s.FailureCount, &s.InputTokens, &s.OutputTokens, &s.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to query global stats: %w", err)
	}
	return &s, nil
}

func (b *PostgresBackend) QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			TO_CHAR(requested_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*),
			COALESCE(SUM(total_tokens), 0)::BIGINT
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyStats, error) {
		var d DailyStats
		err := row.Scan(&d.Day, &d.Requests, &d.Tokens)
		return d, err
	})
}

func (b *PostgresBackend) QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			COALESCE(NULLIF(model, ''), 'unknown') AS m,
			COUNT(*) AS requests,
			COUNT(*) FILTER (WHERE NOT failed),
			COUNT(*) FILTER (WHERE failed),
			COALESCE(SUM(input_tokens), 0)::BIGINT,
			COALESCE(SUM(output_tokens), 0)::BIGINT,
			COALESCE(SUM(cached_tokens), 0)::BIGINT,
			COALESCE(SUM(total_tokens), 0)::BIGINT
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY m
		ORDER BY requests DESC, m
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query model stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ModelStats, error) {
		var ms ModelStats
		err := row.Scan(&ms.Model, &ms.Requests, &ms.SuccessCount, &ms.FailureCount,
			&ms.InputTokens, &ms.OutputTokens, &ms.CachedTokens, &ms.TotalTokens)
		return ms, err
	})
}

func (b *PostgresBackend) QueryEndpointStats(ctx context.Context, since time.Time) ([]EndpointStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			COALESCE(NULLIF(endpoint, ''), 'unknown') AS e,
			COUNT(*) AS requests,
			COUNT(*) FILTER (WHERE failed),
			COALESCE(AVG(latency_ms), 0)::DOUBLE PRECISION
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY e
		ORDER BY requests DESC, e
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (EndpointStats, error) {
		var es EndpointStats
		err := row.Scan(&es.Endpoint, &es.Requests, &es.FailureCount, &es.AvgLatencyMs)
		return es, err
	})
}

func (b *PostgresBackend) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM usage_records WHERE requested_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// writeBatch bulk-loads records with COPY.
func (b *PostgresBackend) writeBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := b.pool.CopyFrom(ctx,
		pgx.Identifier{"usage_records"},
		usageColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{
				r.Model, r.RequestedModel, r.Endpoint, r.Stream, r.Status, r.Failed,
				r.InputTokens, r.OutputTokens, r.CachedTokens, r.TotalTokens(),
				r.Latency.Milliseconds(), r.RequestedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy records: %w", err)
	}
	return nil
}
