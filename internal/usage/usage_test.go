package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nghyane/msgproxy/internal/config"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "usage.db"), BackendConfig{BatchSize: 2})
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func TestSQLiteBackend_FlushAndQuery(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	records := []Record{
		{Model: "gpt-4o", Endpoint: "/v1/messages", InputTokens: 10, OutputTokens: 5, CachedTokens: 2, Latency: 100 * time.Millisecond, RequestedAt: now},
		{Model: "gpt-4o", Endpoint: "/v1/messages", InputTokens: 20, OutputTokens: 1, Latency: 300 * time.Millisecond, RequestedAt: now},
		{Model: "o3", Endpoint: "/v1/chat/completions", Failed: true, Status: 502, RequestedAt: now},
	}
	for _, r := range records {
		b.Enqueue(r)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	global, err := b.QueryGlobalStats(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := AggregatedStats{TotalRequests: 3, SuccessCount: 2, FailureCount: 1, InputTokens: 30, OutputTokens: 6, TotalTokens: 36}
	if *global != want {
		t.Errorf("global = %+v, want %+v", *global, want)
	}

	models, err := b.QueryModelStats(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].Model != "gpt-4o" || models[0].Requests != 2 || models[0].CachedTokens != 2 {
		t.Errorf("models = %+v", models)
	}

	endpoints, err := b.QueryEndpointStats(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 2 || endpoints[0].Endpoint != "/v1/messages" || endpoints[0].AvgLatencyMs != 200 {
		t.Errorf("endpoints = %+v", endpoints)
	}

	daily, err := b.QueryDailyStats(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	total := int64(0)
	for _, d := range daily {
		total += d.Requests
	}
	if total != 3 {
		t.Errorf("daily = %+v", daily)
	}
}

func TestSQLiteBackend_Cleanup(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	b.Enqueue(Record{Model: "old", RequestedAt: now.AddDate(0, 0, -40)})
	b.Enqueue(Record{Model: "new", RequestedAt: now})
	if err := b.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := b.Cleanup(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	global, _ := b.QueryGlobalStats(ctx, time.Time{})
	if global.TotalRequests != 1 {
		t.Errorf("remaining = %d, want 1", global.TotalRequests)
	}
}

func TestSQLiteBackend_StopDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	b, err := NewSQLiteBackend(path, BackendConfig{BatchSize: 100, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	b.Enqueue(Record{Model: "m", InputTokens: 4})
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteBackend(path, BackendConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Stop()
	global, err := reopened.QueryGlobalStats(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if global.TotalRequests != 1 || global.InputTokens != 4 {
		t.Errorf("global after restart = %+v", *global)
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{"sqlite", "sqlite://" + filepath.Join(t.TempDir(), "a.db"), false},
		{"empty", "", true},
		{"unsupported", "mysql://localhost/db", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(BackendConfig{DSN: tt.dsn})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBackend(%q) error = %v, wantErr %v", tt.dsn, err, tt.wantErr)
			}
			if b != nil {
				_ = b.Stop()
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	t.Run("counters only", func(t *testing.T) {
		r, err := Open(config.UsageConfig{})
		if err != nil {
			t.Fatal(err)
		}
		r.Record(Record{InputTokens: 3, OutputTokens: 4})
		r.Record(Record{Failed: true})
		snap := r.Counters()
		if snap.TotalRequests != 2 || snap.FailureCount != 1 || snap.TotalTokens != 7 {
			t.Errorf("snapshot = %+v", snap)
		}
		s, err := r.Summary(context.Background(), time.Time{})
		if err != nil || s.Persisted != nil {
			t.Errorf("summary = %+v, err = %v", s, err)
		}
		if err := r.Close(); err != nil {
			t.Error(err)
		}
	})

	t.Run("persisted and bootstrapped", func(t *testing.T) {
		cfg := config.UsageConfig{DSN: "sqlite://" + filepath.Join(t.TempDir(), "u.db")}
		r, err := Open(cfg)
		if err != nil {
			t.Fatal(err)
		}
		r.Record(Record{Model: "gpt-4o", Endpoint: "/v1/messages", InputTokens: 8, OutputTokens: 2})
		s, err := r.Summary(context.Background(), time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if s.Persisted == nil || s.Persisted.TotalRequests != 1 || len(s.Models) != 1 {
			t.Errorf("summary = %+v", s)
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}

		again, err := Open(cfg)
		if err != nil {
			t.Fatal(err)
		}
		defer again.Close()
		if snap := again.Counters(); snap.TotalRequests != 1 || snap.TotalTokens != 10 {
			t.Errorf("bootstrapped counters = %+v", snap)
		}
	})

	t.Run("nil recorder", func(t *testing.T) {
		var r *Recorder
		r.Record(Record{})
		if r.Counters().TotalRequests != 0 || r.Persistent() {
			t.Error("nil recorder should be inert")
		}
	})
}
