package streamutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// IdleReason says why a watched stream was released.
type IdleReason int

const (
	// ReasonIdle means no activity was recorded within the timeout.
	ReasonIdle IdleReason = iota + 1
	// ReasonCancelled means the stream's context ended first.
	ReasonCancelled
)

func (r IdleReason) String() string {
	switch r {
	case ReasonIdle:
		return "idle"
	case ReasonCancelled:
		return "cancelled"
	}
	return "unknown"
}

// IdleWatcher monitors many streams from a single goroutine.
type IdleWatcher struct {
	mu       sync.RWMutex
	streams  map[uint64]*watchedStream
	nextID   atomic.Uint64
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type watchedStream struct {
	lastActivity atomic.Int64
	timeout      time.Duration
	fired        atomic.Bool
	onIdle       func(IdleReason)
}

// fire runs onIdle at most once per stream.
func (s *watchedStream) fire(reason IdleReason) {
	if s.fired.CompareAndSwap(false, true) && s.onIdle != nil {
		s.onIdle(reason)
	}
}

// NewIdleWatcher creates a watcher that checks every checkInterval (default 10s).
func NewIdleWatcher(checkInterval time.Duration) *IdleWatcher {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	w := &IdleWatcher{
		streams:  make(map[uint64]*watchedStream),
		interval: checkInterval,
		stopCh:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.watchLoop()
	return w
}

// Register adds a stream. onIdle is called at most once, either when the stream
// has been quiet for longer than timeout or when ctx ends.
// touch records activity; done unregisters the stream and must always be called.
func (w *IdleWatcher) Register(ctx context.Context, timeout time.Duration, onIdle func(IdleReason)) (touch func(), done func()) {
	id := w.nextID.Add(1)

	stream := &watchedStream{timeout: timeout, onIdle: onIdle}
	stream.lastActivity.Store(time.Now().UnixNano())

	w.mu.Lock()
	if w.streams != nil {
		w.streams[id] = stream
	}
	w.mu.Unlock()

	stopAfter := context.AfterFunc(ctx, func() {
		stream.fire(ReasonCancelled)
	})

	touch = func() {
		stream.lastActivity.Store(time.Now().UnixNano())
	}

	var doneOnce sync.Once
	done = func() {
		doneOnce.Do(func() {
			stream.fired.Store(true)
			stopAfter()
			w.mu.Lock()
			delete(w.streams, id)
			w.mu.Unlock()
		})
	}
	return touch, done
}

func (w *IdleWatcher) watchLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.checkStreams(now)
		}
	}
}

func (w *IdleWatcher) checkStreams(now time.Time) {
	nowNano := now.UnixNano()

	// callbacks run without the lock held
	w.mu.RLock()
	toCheck := make([]*watchedStream, 0, len(w.streams))
	for _, stream := range w.streams {
		toCheck = append(toCheck, stream)
	}
	w.mu.RUnlock()

	for _, stream := range toCheck {
		if stream.timeout <= 0 || stream.fired.Load() {
			continue
		}
		if time.Duration(nowNano-stream.lastActivity.Load()) > stream.timeout {
			stream.fire(ReasonIdle)
		}
	}
}

// Stop ends the watch loop. Streams still registered are released as cancelled.
func (w *IdleWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()

		w.mu.Lock()
		remaining := w.streams
		w.streams = nil
		w.mu.Unlock()

		for _, stream := range remaining {
			stream.fire(ReasonCancelled)
		}
	})
}

func (w *IdleWatcher) ActiveCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.streams)
}

var defaultWatcher = sync.OnceValue(func() *IdleWatcher {
	return NewIdleWatcher(5 * time.Second)
})

// DefaultIdleWatcher is the process-wide watcher used by backend stream readers.
func DefaultIdleWatcher() *IdleWatcher {
	return defaultWatcher()
}
