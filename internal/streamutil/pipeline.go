// Package streamutil provides the producer/consumer plumbing used to relay backend streams.
package streamutil

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Chunk is one unit handed from a producer to the consumer.
type Chunk struct {
	Data []byte
	Err  error
}

// Pipeline runs producers in an errgroup and hands their chunks to a single consumer
// over one buffered channel.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	output chan Chunk

	onComplete func(success bool, elapsed time.Duration)
	onError    func(error)

	startTime time.Time
	mu        sync.Mutex
	hasError  bool
	closeErr  error
	closeOnce sync.Once
}

type PipelineConfig struct {
	// BufferSize for the output channel (default: 128)
	BufferSize int
	// OnComplete is called once when all producers have returned.
	OnComplete func(success bool, elapsed time.Duration)
	// OnError is called for every chunk that carries an error.
	OnError func(error)
}

func NewPipeline(parent context.Context, cfg PipelineConfig) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128
	}

	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)

	return &Pipeline{
		ctx:        gctx,
		cancel:     cancel,
		group:      g,
		output:     make(chan Chunk, cfg.BufferSize),
		onComplete: cfg.OnComplete,
		onError:    cfg.OnError,
		startTime:  time.Now(),
	}
}

func (p *Pipeline) Context() context.Context {
	return p.ctx
}

// Output is closed after every producer has returned and Start or Close was called.
func (p *Pipeline) Output() <-chan Chunk {
	return p.output
}

// Go starts a producer. A non-nil error cancels the other producers.
func (p *Pipeline) Go(f func(ctx context.Context) error) {
	p.group.Go(func() error {
		return f(p.ctx)
	})
}

// Send returns false once the pipeline is cancelled.
func (p *Pipeline) Send(chunk Chunk) bool {
	if chunk.Err != nil {
		p.mu.Lock()
		p.hasError = true
		p.mu.Unlock()
		if p.onError != nil {
			p.onError(chunk.Err)
		}
	}

	select {
	case p.output <- chunk:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Pipeline) SendData(data []byte) bool {
	return p.Send(Chunk{Data: data})
}

func (p *Pipeline) SendError(err error) bool {
	return p.Send(Chunk{Err: err})
}

// Close waits for the producers, closes Output and reports completion.
// It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.group.Wait()
		close(p.output)

		p.mu.Lock()
		hasError := p.hasError
		p.mu.Unlock()

		if p.onComplete != nil {
			p.onComplete(p.closeErr == nil && !hasError, time.Since(p.startTime))
		}
		p.cancel()
	})
	return p.closeErr
}

// Cancel stops the producers; a consumer should keep draining Output until it closes.
func (p *Pipeline) Cancel() {
	p.cancel()
}

// Start closes the pipeline in the background once the producers return,
// so the consumer can simply range over Output.
func (p *Pipeline) Start() {
	go func() {
		_ = p.Close()
	}()
}
