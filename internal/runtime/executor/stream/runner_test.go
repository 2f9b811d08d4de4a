package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nghyane/msgproxy/internal/translator"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

const (
	roleLine   = `data: {"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`
	textLine   = `data: {"choices":[{"index":0,"delta":{"content":"Hi"}}]}`
	finishLine = `data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":2}}`
)

func sse(lines ...string) string {
	return strings.Join(lines, "\n\n") + "\n\n"
}

type recorder struct {
	names []string
	fail  int
}

func (r *recorder) Send(ev ir.StreamEvent) error {
	if r.fail > 0 && len(r.names) >= r.fail {
		return errors.New("client gone")
	}
	r.names = append(r.names, ev.EventName())
	return nil
}

func (r *recorder) sequence() string {
	return strings.Join(r.names, ",")
}

func TestRun_CompleteStream(t *testing.T) {
	body := sse(": keep-alive", roleLine, textLine, finishLine, "data: [DONE]")
	rec := &recorder{}

	res, err := Run(context.Background(), strings.NewReader(body), translator.NewStreamTranslator("claude-x", 5), rec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "message_start,content_block_start,content_block_delta,content_block_stop,message_delta,message_stop"
	if rec.sequence() != want {
		t.Errorf("events = %s\nwant %s", rec.sequence(), want)
	}
	if res.Err != nil || res.Events != 6 {
		t.Errorf("result = %+v", res)
	}
	if res.StopReason != ir.StopReasonEndTurn || res.Usage.InputTokens != 9 || res.Usage.OutputTokens != 2 {
		t.Errorf("usage/stop = %+v / %q", res.Usage, res.StopReason)
	}
}

type eventSink struct {
	events []ir.StreamEvent
}

func (s *eventSink) Send(ev ir.StreamEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func TestRun_TrailingUsageReachesMessageDelta(t *testing.T) {
	body := sse(roleLine, textLine,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":34}}`,
		"data: [DONE]")
	sink := &eventSink{}

	res, err := Run(context.Background(), strings.NewReader(body), translator.NewStreamTranslator("m", 10), sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 6 {
		t.Fatalf("events = %d, want 6", len(sink.events))
	}
	delta, ok := sink.events[4].(*ir.MessageDeltaEvent)
	if !ok {
		t.Fatalf("event 4 = %s, want message_delta", sink.events[4].EventName())
	}
	if delta.Usage.InputTokens != 12 || delta.Usage.OutputTokens != 34 {
		t.Errorf("message_delta usage = %+v", delta.Usage)
	}
	if sink.events[5].EventName() != ir.ClaudeSSEMessageStop {
		t.Errorf("last event = %s", sink.events[5].EventName())
	}
	if res.Usage.OutputTokens != 34 {
		t.Errorf("result usage = %+v", res.Usage)
	}
}

func TestRun_EOFWithoutFinishIsFinalized(t *testing.T) {
	rec := &recorder{}
	res, err := Run(context.Background(), strings.NewReader(sse(roleLine, textLine)), translator.NewStreamTranslator("m", 0), rec)
	if err != nil {
		t.Fatal(err)
	}
	want := "message_start,content_block_start,content_block_delta,content_block_stop,message_delta,message_stop"
	if rec.sequence() != want {
		t.Errorf("events = %s", rec.sequence())
	}
	if res.StopReason != ir.StopReasonEndTurn {
		t.Errorf("stop reason = %q", res.StopReason)
	}
}

func TestRun_InBandError(t *testing.T) {
	body := sse(roleLine, `data: {"error":{"message":"model overloaded"}}`, textLine, finishLine)
	rec := &recorder{}
	res, err := Run(context.Background(), strings.NewReader(body), translator.NewStreamTranslator("m", 0), rec)
	if err != nil {
		t.Fatal(err)
	}
	if rec.sequence() != "message_start,error" {
		t.Errorf("events = %s", rec.sequence())
	}
	if res.Err == nil || res.Err.Error() != "model overloaded" {
		t.Errorf("res.Err = %v", res.Err)
	}
}

type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func TestRun_ReadErrorEmitsErrorEvent(t *testing.T) {
	errReset := errors.New("connection reset")
	body := &failingReader{r: strings.NewReader(sse(roleLine, textLine)), err: errReset}
	rec := &recorder{}

	res, err := Run(context.Background(), body, translator.NewStreamTranslator("m", 0), rec)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(rec.sequence(), ",error") || strings.Contains(rec.sequence(), "message_stop") {
		t.Errorf("events = %s", rec.sequence())
	}
	if !errors.Is(res.Err, errReset) {
		t.Errorf("res.Err = %v", res.Err)
	}
}

func TestRun_EmptyStream(t *testing.T) {
	rec := &recorder{}
	res, err := Run(context.Background(), strings.NewReader(sse("data: [DONE]")), translator.NewStreamTranslator("m", 0), rec)
	if err != nil {
		t.Fatal(err)
	}
	if rec.sequence() != "error" || !errors.Is(res.Err, ErrEmptyStream) {
		t.Errorf("events = %s, err = %v", rec.sequence(), res.Err)
	}
}

func TestRun_SinkFailureStopsRelay(t *testing.T) {
	body := sse(roleLine, textLine, textLine, textLine, finishLine)
	rec := &recorder{fail: 2}
	_, err := Run(context.Background(), strings.NewReader(body), translator.NewStreamTranslator("m", 0), rec)
	if err == nil || err.Error() != "client gone" {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.names) != 2 {
		t.Errorf("sent %d events after sink failure", len(rec.names))
	}
}

func TestRun_MalformedChunkSkipped(t *testing.T) {
	body := sse(roleLine, `data: {"choices":[{"delta":`, textLine, finishLine)
	rec := &recorder{}
	if _, err := Run(context.Background(), strings.NewReader(body), translator.NewStreamTranslator("m", 0), rec); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(rec.sequence(), "message_stop") {
		t.Errorf("events = %s", rec.sequence())
	}
}

func TestSSESink(t *testing.T) {
	var buf bytes.Buffer
	flushes := 0
	sink := NewSSESink(&buf, func() { flushes++ })

	if err := sink.Send(ir.NewMessageStop()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Send(ir.NewTextDelta(0, "hi")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "event: message_stop\ndata: {") || !strings.Contains(out, "\n\nevent: content_block_delta\ndata: ") {
		t.Errorf("frames = %q", out)
	}
	if flushes != 2 {
		t.Errorf("flushes = %d, want one per event", flushes)
	}
}
