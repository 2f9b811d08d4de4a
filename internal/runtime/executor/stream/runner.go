// Package stream relays a backend chat-completion stream to a message-protocol client.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/sseutil"
	"github.com/nghyane/msgproxy/internal/streamutil"
	"github.com/nghyane/msgproxy/internal/translator"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

const (
	DefaultMaxLineSize       = 2 * 1024 * 1024 // 2MB
	DefaultScannerBufferSize = 64 * 1024
)

var scannerBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultScannerBufferSize)
		return &b
	},
}

var doneMarker = []byte(ir.DoneSentinel)

// Result summarizes one relayed stream.
type Result struct {
	Usage      ir.Usage
	StopReason ir.StopReason
	Events     int
	Elapsed    time.Duration
	// Err is the upstream failure reported to the client as an error event, if any.
	Err error
}

// ErrEmptyStream means the backend closed the stream before sending any content.
var ErrEmptyStream = errors.New("backend stream ended before any content")

// Run reads SSE lines from body, translates them with t and hands every resulting
// event to sink in order. Reading happens in a separate producer goroutine so a slow
// client does not stall the backend connection's reads.
//
// Upstream failures are reported in-band as an error event and in Result.Err; the
// returned error is non-nil only when the sink fails or ctx ends.
func Run(ctx context.Context, body io.Reader, t *translator.StreamTranslator, sink Sink) (Result, error) {
	start := time.Now()
	pipeline := streamutil.NewPipeline(ctx, streamutil.PipelineConfig{
		OnError: func(err error) {
			log.Warnf("backend stream read failed: %v", err)
		},
	})
	if c, ok := body.(io.Closer); ok {
		// unblocks a pending read once the pipeline is cancelled
		stop := context.AfterFunc(pipeline.Context(), func() { _ = c.Close() })
		defer stop()
	}
	pipeline.Go(func(ctx context.Context) error {
		return readLines(ctx, body, pipeline)
	})
	pipeline.Start()

	var (
		res     Result
		sinkErr error
		stopped bool
	)
	emit := func(events []ir.StreamEvent) {
		for _, ev := range events {
			if sinkErr != nil {
				return
			}
			if err := sink.Send(ev); err != nil {
				sinkErr = err
				pipeline.Cancel()
				return
			}
			res.Events++
		}
	}
	fail := func(errType, message string, cause error) {
		res.Err = cause
		stopped = true
		pipeline.Cancel()
		emit([]ir.StreamEvent{ir.NewErrorEvent(errType, message)})
	}

	for chunk := range pipeline.Output() {
		if stopped || sinkErr != nil {
			continue
		}
		switch {
		case chunk.Err != nil:
			fail(ir.ClaudeErrAPI, chunk.Err.Error(), chunk.Err)
		case bytes.Equal(chunk.Data, doneMarker):
			stopped = true
			pipeline.Cancel()
		default:
			if msg, ok := sseutil.ErrorMessage(chunk.Data); ok {
				fail(ir.ClaudeErrAPI, msg, errors.New(msg))
				continue
			}
			emit(t.Translate(chunk.Data))
		}
	}

	if sinkErr == nil && res.Err == nil {
		if !t.State().MessageStartSent {
			if ctx.Err() == nil {
				res.Err = ErrEmptyStream
				emit([]ir.StreamEvent{ir.NewErrorEvent(ir.ClaudeErrAPI, ErrEmptyStream.Error())})
			}
		} else if ctx.Err() == nil {
			emit(t.Finalize())
		}
	}

	state := t.State()
	res.Usage = state.Usage
	res.StopReason = state.StopReason
	res.Elapsed = time.Since(start)

	if sinkErr != nil {
		return res, sinkErr
	}
	return res, ctx.Err()
}

// readLines scans body and forwards JSON payloads and the [DONE] marker.
func readLines(ctx context.Context, body io.Reader, p *streamutil.Pipeline) error {
	bufPtr := scannerBufferPool.Get().(*[]byte)
	defer scannerBufferPool.Put(bufPtr)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(*bufPtr, DefaultMaxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if sseutil.IsDoneLine(line) {
			p.SendData(doneMarker)
			return nil
		}
		payload := sseutil.JSONPayload(line)
		if payload == nil {
			continue
		}
		// the scanner reuses its buffer
		if !p.SendData(bytes.Clone(payload)) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.SendError(err)
	}
	return nil
}
