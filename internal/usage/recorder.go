package usage

import (
	"context"
	"errors"
	"time"

	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
)

// Recorder updates in-process counters for every request and forwards records to an
// optional persistence backend.
type Recorder struct {
	counters *Counters
	backend  Backend
}

// NewRecorder wraps backend, which may be nil for counters-only operation.
func NewRecorder(backend Backend) *Recorder {
	return &Recorder{counters: NewCounters(), backend: backend}
}

// Open builds a Recorder from config. An empty DSN yields a counters-only recorder.
// With a backend, counters are seeded from persisted history.
func Open(cfg config.UsageConfig) (*Recorder, error) {
	if cfg.DSN == "" {
		return NewRecorder(nil), nil
	}
	backend, err := NewBackend(BackendConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	if err := backend.Start(); err != nil {
		_ = backend.Stop()
		return nil, err
	}
	r := NewRecorder(backend)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stats, err := backend.QueryGlobalStats(ctx, time.Time{})
	if err != nil {
		log.Warnf("usage: failed to bootstrap counters from history: %v", err)
	} else {
		r.counters.Bootstrap(*stats)
		log.Infof("usage: bootstrapped counters: %d requests, %d tokens", stats.TotalRequests, stats.TotalTokens)
	}
	return r, nil
}

// Record counts rec and queues it for persistence. Safe on a nil Recorder.
func (r *Recorder) Record(rec Record) {
	if r == nil {
		return
	}
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = time.Now()
	}
	if rec.Model == "" {
		rec.Model = "unknown"
	}
	r.counters.Record(rec)
	if r.backend != nil {
		r.backend.Enqueue(rec)
	}
}

func (r *Recorder) Counters() CounterSnapshot {
	if r == nil {
		return CounterSnapshot{}
	}
	return r.counters.Snapshot()
}

// Persistent reports whether records are written to a store.
func (r *Recorder) Persistent() bool {
	return r != nil && r.backend != nil
}

// Summary combines live counters with persisted breakdowns since the given time.
func (r *Recorder) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	s := &Summary{CounterSnapshot: r.Counters(), Since: since}
	if !r.Persistent() {
		return s, nil
	}
	if err := r.backend.Flush(ctx); err != nil {
		log.Warnf("usage: flush before summary failed: %v", err)
	}

	var errs []error
	var err error
	if s.Persisted, err = r.backend.QueryGlobalStats(ctx, since); err != nil {
		errs = append(errs, err)
	}
	if s.Daily, err = r.backend.QueryDailyStats(ctx, since); err != nil {
		errs = append(errs, err)
	}
	if s.Models, err = r.backend.QueryModelStats(ctx, since); err != nil {
		errs = append(errs, err)
	}
	if s.Endpoints, err = r.backend.QueryEndpointStats(ctx, since); err != nil {
		errs = append(errs, err)
	}
	return s, errors.Join(errs...)
}

// Close flushes and stops the backend.
func (r *Recorder) Close() error {
	if !r.Persistent() {
		return nil
	}
	return r.backend.Stop()
}
