package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/streamutil"
)

// ErrStreamIdle is returned by StreamReader.Read after the idle watchdog closed the body.
var ErrStreamIdle = errors.New("backend stream stalled: idle timeout exceeded")

// StreamReader wraps a backend body with context-aware cancellation and idle detection.
//
// Cancelling ctx closes the body, which unblocks a pending Read. The idle check is
// a safety net for upstreams that stop sending without closing the connection;
// it never cuts a stream that is still producing data.
type StreamReader struct {
	body      io.ReadCloser
	name      string
	closed    atomic.Bool
	idled     atomic.Bool
	closeOnce sync.Once
	closeErr  error
	touch     func()
	release   func()
}

// NewStreamReader registers body with the process-wide idle watcher.
// idleTimeout <= 0 disables idle detection; cancellation still applies.
func NewStreamReader(ctx context.Context, body io.ReadCloser, idleTimeout time.Duration, name string) *StreamReader {
	return newStreamReader(streamutil.DefaultIdleWatcher(), ctx, body, idleTimeout, name)
}

func newStreamReader(w *streamutil.IdleWatcher, ctx context.Context, body io.ReadCloser, idleTimeout time.Duration, name string) *StreamReader {
	sr := &StreamReader{body: body, name: name}
	sr.touch, sr.release = w.Register(ctx, idleTimeout, func(reason streamutil.IdleReason) {
		if reason == streamutil.ReasonIdle {
			sr.idled.Store(true)
			log.Warnf("%s: stream stalled for more than %v, closing connection", name, idleTimeout)
		}
		sr.closeWithReason(reason.String())
	})
	return sr
}

// Read implements io.Reader. Successful reads reset the idle timer.
func (sr *StreamReader) Read(p []byte) (int, error) {
	if sr.closed.Load() {
		if sr.idled.Load() {
			return 0, ErrStreamIdle
		}
		return 0, io.EOF
	}

	n, err := sr.body.Read(p)
	if n > 0 {
		sr.touch()
	}
	if err != nil && err != io.EOF && sr.idled.Load() {
		return n, ErrStreamIdle
	}
	return n, err
}

func (sr *StreamReader) closeWithReason(reason string) {
	sr.closeOnce.Do(func() {
		sr.closed.Store(true)
		sr.closeErr = sr.body.Close()
		log.Debugf("%s: stream closed: %s", sr.name, reason)
	})
}

// Close implements io.Closer. Safe to call multiple times.
func (sr *StreamReader) Close() error {
	sr.release()
	sr.closeWithReason("explicit close")
	return sr.closeErr
}
