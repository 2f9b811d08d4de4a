package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/robfig/cron/v3"
)

// retentionSchedule runs cleanup once a day shortly after midnight.
const retentionSchedule = "17 0 * * *"

type batchWriter func(ctx context.Context, records []Record) error
type cleaner func(ctx context.Context, before time.Time) (int64, error)

// writeQueue batches records from Enqueue into writes and prunes old rows on a cron schedule.
// Both backends share it; they differ only in the write and cleanup functions.
type writeQueue struct {
	records       chan Record
	batchSize     int
	flushInterval time.Duration
	retentionDays int
	write         batchWriter
	cleanup       cleaner

	cron     *cron.Cron
	flushReq chan chan error
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  atomic.Bool
	dropped  atomic.Int64
}

func newWriteQueue(cfg BackendConfig, write batchWriter, cleanup cleaner) *writeQueue {
	cfg = cfg.withDefaults()
	return &writeQueue{
		records:       make(chan Record, queueCapacity),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		retentionDays: cfg.RetentionDays,
		write:         write,
		cleanup:       cleanup,
		flushReq:      make(chan chan error),
		stopCh:        make(chan struct{}),
	}
}

func (q *writeQueue) enqueue(r Record) {
	select {
	case q.records <- r:
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warnf("usage: persistence queue full, dropped %d records so far (latest %s)", n, r.Model)
		}
	}
}

func (q *writeQueue) start() error {
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(retentionSchedule, q.prune); err != nil {
		return err
	}
	c.Start()
	q.cron = c

	q.wg.Add(1)
	go q.loop()
	return nil
}

// flush writes everything queued so far, including a batch the loop is holding.
func (q *writeQueue) flush(ctx context.Context) error {
	if !q.started.Load() {
		return q.drain(ctx)
	}
	reply := make(chan error, 1)
	select {
	case q.flushReq <- reply:
	case <-q.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain writes everything currently in the channel.
func (q *writeQueue) drain(ctx context.Context) error {
	batch := make([]Record, 0, q.batchSize)
	for {
		select {
		case r := <-q.records:
			batch = append(batch, r)
			if len(batch) >= q.batchSize {
				if err := q.write(ctx, batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				return q.write(ctx, batch)
			}
			return nil
		}
	}
}

func (q *writeQueue) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, q.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := q.write(ctx, batch); err != nil {
			log.Errorf("usage: write batch of %d failed: %v", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case r := <-q.records:
			batch = append(batch, r)
			if len(batch) >= q.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case reply := <-q.flushReq:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			var err error
			if len(batch) > 0 {
				err = q.write(ctx, batch)
				batch = batch[:0]
			}
			if err == nil {
				err = q.drain(ctx)
			}
			cancel()
			reply <- err
		case <-q.stopCh:
			flush()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := q.drain(ctx); err != nil {
				log.Errorf("usage: final flush failed: %v", err)
			}
			cancel()
			return
		}
	}
}

func (q *writeQueue) prune() {
	cutoff := time.Now().AddDate(0, 0, -q.retentionDays)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := q.cleanup(ctx, cutoff)
	if err != nil {
		log.Errorf("usage: retention cleanup failed: %v", err)
		return
	}
	if n > 0 {
		log.Infof("usage: removed %d records older than %d days", n, q.retentionDays)
	}
}

// stop ends the loop after a final flush. A queue that never started is drained inline.
func (q *writeQueue) stop() {
	q.stopOnce.Do(func() {
		if !q.started.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := q.drain(ctx); err != nil {
				log.Errorf("usage: final flush failed: %v", err)
			}
			cancel()
			return
		}
		close(q.stopCh)
		q.wg.Wait()
		<-q.cron.Stop().Done()
	})
}
