package stream

import (
	"fmt"
	"io"

	"github.com/nghyane/msgproxy/internal/metrics"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// Sink receives translated events in order.
type Sink interface {
	Send(event ir.StreamEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event ir.StreamEvent) error

func (f SinkFunc) Send(event ir.StreamEvent) error { return f(event) }

// SSESink writes each event as an SSE frame and flushes immediately.
type SSESink struct {
	w     io.Writer
	flush func()
}

// NewSSESink returns a sink over w. flush may be nil.
func NewSSESink(w io.Writer, flush func()) *SSESink {
	return &SSESink{w: w, flush: flush}
}

func (s *SSESink) Send(event ir.StreamEvent) error {
	frame, err := ir.EncodeSSE(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventName(), err)
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	metrics.StreamEventsTotal.WithLabelValues(event.EventName()).Inc()
	return nil
}
