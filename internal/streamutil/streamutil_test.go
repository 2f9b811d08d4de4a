package streamutil

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPipeline_DeliversInOrderAndCompletes(t *testing.T) {
	var success atomic.Bool
	var completed atomic.Int32
	p := NewPipeline(context.Background(), PipelineConfig{
		BufferSize: 2,
		OnComplete: func(ok bool, _ time.Duration) {
			success.Store(ok)
			completed.Add(1)
		},
	})
	p.Go(func(ctx context.Context) error {
		for _, s := range []string{"a", "b", "c", "d"} {
			if !p.SendData([]byte(s)) {
				return ctx.Err()
			}
		}
		return nil
	})
	p.Start()

	var got string
	for chunk := range p.Output() {
		got += string(chunk.Data)
	}
	if got != "abcd" {
		t.Errorf("got %q, want abcd", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if completed.Load() != 1 || !success.Load() {
		t.Errorf("completed=%d success=%v", completed.Load(), success.Load())
	}
}

func TestPipeline_ErrorChunkMarksFailure(t *testing.T) {
	errRead := errors.New("read failed")
	var seen error
	var success atomic.Bool
	success.Store(true)
	p := NewPipeline(context.Background(), PipelineConfig{
		OnError:    func(err error) { seen = err },
		OnComplete: func(ok bool, _ time.Duration) { success.Store(ok) },
	})
	p.Go(func(context.Context) error {
		p.SendError(errRead)
		return nil
	})
	p.Start()

	var chunks []Chunk
	for c := range p.Output() {
		chunks = append(chunks, c)
	}
	_ = p.Close()
	if len(chunks) != 1 || !errors.Is(chunks[0].Err, errRead) {
		t.Errorf("chunks = %+v", chunks)
	}
	if !errors.Is(seen, errRead) || success.Load() {
		t.Errorf("OnError saw %v, success=%v", seen, success.Load())
	}
}

func TestPipeline_CancelUnblocksProducer(t *testing.T) {
	p := NewPipeline(context.Background(), PipelineConfig{BufferSize: 1})
	p.Go(func(ctx context.Context) error {
		for p.SendData([]byte("x")) {
		}
		return nil
	})
	p.Start()

	<-p.Output()
	p.Cancel()
	for range p.Output() {
	}
}

func TestIdleWatcher_FiresOnIdle(t *testing.T) {
	w := NewIdleWatcher(5 * time.Millisecond)
	defer w.Stop()

	reasons := make(chan IdleReason, 2)
	_, done := w.Register(context.Background(), 20*time.Millisecond, func(r IdleReason) { reasons <- r })
	defer done()

	select {
	case r := <-reasons:
		if r != ReasonIdle {
			t.Errorf("reason = %v, want idle", r)
		}
	case <-time.After(time.Second):
		t.Fatal("idle callback not fired")
	}

	time.Sleep(30 * time.Millisecond)
	if len(reasons) != 0 {
		t.Error("callback must fire at most once")
	}
}

func TestIdleWatcher_TouchKeepsStreamAlive(t *testing.T) {
	w := NewIdleWatcher(5 * time.Millisecond)
	defer w.Stop()

	var fired atomic.Bool
	touch, done := w.Register(context.Background(), 40*time.Millisecond, func(IdleReason) { fired.Store(true) })
	for i := 0; i < 10; i++ {
		touch()
		time.Sleep(10 * time.Millisecond)
	}
	done()
	if fired.Load() {
		t.Error("active stream should not be reported idle")
	}
	if w.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after done", w.ActiveCount())
	}
}

func TestIdleWatcher_ContextCancel(t *testing.T) {
	w := NewIdleWatcher(time.Hour)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	reasons := make(chan IdleReason, 1)
	_, done := w.Register(ctx, time.Hour, func(r IdleReason) { reasons <- r })
	defer done()

	cancel()
	select {
	case r := <-reasons:
		if r != ReasonCancelled {
			t.Errorf("reason = %v, want cancelled", r)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel callback not fired")
	}
}

func TestIdleWatcher_DoneSuppressesCallback(t *testing.T) {
	w := NewIdleWatcher(time.Hour)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Bool
	_, done := w.Register(ctx, time.Hour, func(IdleReason) { fired.Store(true) })
	done()
	cancel()
	time.Sleep(10 * time.Millisecond)
	if fired.Load() {
		t.Error("callback fired after done")
	}
}
