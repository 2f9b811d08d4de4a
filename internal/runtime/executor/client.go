// Package executor performs calls against the chat-completion backend.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nghyane/msgproxy/internal/auth"
	"github.com/nghyane/msgproxy/internal/config"
	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
	"github.com/nghyane/msgproxy/internal/resilience"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

const (
	chatCompletionsPath = "/chat/completions"
	modelsPath          = "/models"

	modeComplete = "complete"
	modeStream   = "stream"
	modeModels   = "models"
)

// Client talks to one chat-completion backend. It is safe for concurrent use.
type Client struct {
	baseURL     string
	headers     map[string]string
	http        *http.Client
	timeout     time.Duration
	idleTimeout time.Duration

	call    *resilience.Executor[[]byte]
	connect *resilience.Executor[*http.Response]
	streams *resilience.StreamingCircuitBreaker
}

// NewClient builds a client from the backend, retry and breaker configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	transport, err := NewTransport(cfg.Backend.ProxyURL)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, auth.NewTransport(transport, cfg.Backend.ResolveAPIKey())), nil
}

func newClient(cfg *config.Config, rt http.RoundTripper) *Client {
	retry := resilience.RetryConfigFrom(cfg.Retry, IsRetryable)
	breaker := resilience.BreakerConfigFrom("backend", cfg.Breaker, func(err error) bool {
		return !countsAgainstBreaker(err)
	})

	c := &Client{
		baseURL:     cfg.Backend.BaseURL,
		headers:     cfg.Backend.Headers,
		http:        &http.Client{Transport: rt},
		timeout:     cfg.Backend.Timeout.Std(),
		idleTimeout: cfg.Backend.IdleTimeout.Std(),
		call:        resilience.NewExecutor[[]byte](retry, breaker),
		connect:     resilience.NewExecutor[*http.Response](retry, nil),
	}
	if breaker != nil {
		c.streams = resilience.NewStreamingCircuitBreaker(*breaker)
	}
	return c
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, body []byte) (*ir.ChatCompletionResponse, error) {
	raw, err := c.CompleteRaw(ctx, body)
	if err != nil {
		return nil, err
	}
	var resp ir.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	return &resp, nil
}

// CompleteRaw performs a non-streaming chat completion and returns the body as sent by the backend.
func (c *Client) CompleteRaw(ctx context.Context, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.call.Execute(ctx, func() ([]byte, error) {
		return c.roundTrip(ctx, modeComplete, http.MethodPost, chatCompletionsPath, body)
	})
}

// ListModels fetches the backend's model list.
func (c *Client) ListModels(ctx context.Context) ([]ir.ModelEntry, error) {
	raw, err := c.call.Execute(ctx, func() ([]byte, error) {
		return c.roundTrip(ctx, modeModels, http.MethodGet, modelsPath, nil)
	})
	if err != nil {
		return nil, err
	}
	var list ir.ModelList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return list.Data, nil
}

// Stream opens a streaming chat completion. Retries happen only while connecting;
// once the body is returned, failures surface to the reader. The caller must Close it.
func (c *Client) Stream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	done := func(bool) {}
	if c.streams != nil {
		var err error
		if done, err = c.streams.Allow(); err != nil {
			metrics.UpstreamErrorsTotal.WithLabelValues(modeStream, "0").Inc()
			return nil, err
		}
	}

	resp, err := c.connect.Execute(ctx, func() (*http.Response, error) {
		return c.open(ctx, body)
	})
	if err != nil {
		done(!countsAgainstBreaker(err))
		return nil, err
	}

	return &trackedBody{
		StreamReader: NewStreamReader(ctx, resp.Body, c.idleTimeout, "backend stream"),
		ctx:          ctx,
		done:         done,
	}, nil
}

func (c *Client) open(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, chatCompletionsPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveUpstream(modeStream, start)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(modeStream, "0").Inc()
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		se := newStatusError(resp)
		metrics.UpstreamErrorsTotal.WithLabelValues(modeStream, strconv.Itoa(se.Code)).Inc()
		log.Debugf("backend stream: status %d: %s", se.Code, se.Message())
		return nil, se
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, mode, method, path string, body []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveUpstream(mode, start)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(mode, "0").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if err := decodeBody(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := newStatusError(resp)
		metrics.UpstreamErrorsTotal.WithLabelValues(mode, strconv.Itoa(se.Code)).Inc()
		log.Debugf("backend %s: status %d: %s", mode, se.Code, se.Message())
		return nil, se
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

// trackedBody reports the stream outcome to the breaker when closed.
// A read error other than io.EOF marks the stream as failed unless the caller went away.
type trackedBody struct {
	*StreamReader
	ctx    context.Context
	failed atomic.Bool
	once   sync.Once
	done   func(success bool)
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.StreamReader.Read(p)
	if err != nil && err != io.EOF && b.ctx.Err() == nil {
		b.failed.Store(true)
	}
	return n, err
}

func (b *trackedBody) Close() error {
	err := b.StreamReader.Close()
	b.once.Do(func() { b.done(!b.failed.Load()) })
	return err
}
