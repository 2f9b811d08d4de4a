package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists usage to a local SQLite file. Timestamps are stored as
// unix milliseconds so range filters compare numerically.
type SQLiteBackend struct {
	db     *sql.DB
	queue  *writeQueue
	dbPath string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model TEXT NOT NULL,
	requested_model TEXT NOT NULL DEFAULT '',
	endpoint TEXT NOT NULL DEFAULT '',
	stream BOOLEAN NOT NULL DEFAULT 0,
	status INTEGER NOT NULL DEFAULT 0,
	failed BOOLEAN NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cached_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	requested_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_requested_at ON usage_records(requested_at);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
`

// NewSQLiteBackend opens (creating if needed) the database at dbPath. ":memory:" is accepted.
// The backend must be started with Start() before Enqueue is drained in the background.
func NewSQLiteBackend(dbPath string, cfg BackendConfig) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("SQLite path is required")
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if strings.HasPrefix(dbPath, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			dbPath = filepath.Join(home, dbPath[1:])
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: SQLite serializes writers and :memory: is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	b := &SQLiteBackend{db: db, dbPath: dbPath}
	b.queue = newWriteQueue(cfg, b.writeBatch, b.Cleanup)
	return b, nil
}

func (b *SQLiteBackend) Start() error { return b.queue.start() }

func (b *SQLiteBackend) Stop() error {
	if b == nil {
		return nil
	}
	b.queue.stop()
	return b.db.Close()
}

func (b *SQLiteBackend) Enqueue(record Record) {
	if b == nil {
		return
	}
	b.queue.enqueue(record)
}

func (b *SQLiteBackend) Flush(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.queue.flush(ctx)
}

func (b *SQLiteBackend) DBPath() string {
	if b == nil {
		return ""
	}
	return b.dbPath
}

func (b *SQLiteBackend) QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN failed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM usage_records
		WHERE requested_at >= ?
	`, since.UnixMilli())

	var s AggregatedStats
	if err := row.Scan(&s.TotalRequests, &s.SuccessCount, &s.FailureCount, &s.InputTokens, &s.OutputTokens, &s.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to query global stats: %w", err)
	}
	return &s, nil
}

func (b *SQLiteBackend) QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT
			DATE(requested_at / 1000, 'unixepoch') AS day,
			COUNT(*),
			COALESCE(SUM(total_tokens), 0)
		FROM usage_records
		WHERE requested_at >= ?
		GROUP BY day
		ORDER BY day
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var results []DailyStats
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Day, &d.Requests, &d.Tokens); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT
			COALESCE(NULLIF(model, ''), 'unknown') AS m,
			COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN failed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cached_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM usage_records
		WHERE requested_at >= ?
		GROUP BY m
		ORDER BY requests DESC, m
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query model stats: %w", err)
	}
	defer rows.Close()

	var results []ModelStats
	for rows.Next() {
		var ms ModelStats
		if err := rows.Scan(&ms.Model, &ms.Requests, &ms.SuccessCount, &ms.FailureCount,
			&ms.InputTokens, &ms.OutputTokens, &ms.CachedTokens, &ms.TotalTokens); err != nil {
			return nil, err
		}
		results = append(results, ms)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) QueryEndpointStats(ctx context.Context, since time.Time) ([]EndpointStats, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT
			COALESCE(NULLIF(endpoint, ''), 'unknown') AS e,
			COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM usage_records
		WHERE requested_at >= ?
		GROUP BY e
		ORDER BY requests DESC, e
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint stats: %w", err)
	}
	defer rows.Close()

	var results []EndpointStats
	for rows.Next() {
		var es EndpointStats
		if err := rows.Scan(&es.Endpoint, &es.Requests, &es.FailureCount, &es.AvgLatencyMs); err != nil {
			return nil, err
		}
		results = append(results, es)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM usage_records WHERE requested_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// writeBatch inserts records in a single transaction.
func (b *SQLiteBackend) writeBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (
			model, requested_model, endpoint, stream, status, failed,
			input_tokens, output_tokens, cached_tokens, total_tokens,
			latency_ms, requested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Model, r.RequestedModel, r.Endpoint, r.Stream, r.Status, r.Failed,
			r.InputTokens, r.OutputTokens, r.CachedTokens, r.TotalTokens(),
			r.Latency.Milliseconds(), r.RequestedAt.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
