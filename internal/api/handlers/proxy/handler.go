// Package proxy serves the message-protocol and chat-completion endpoints.
package proxy

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"github.com/nghyane/msgproxy/internal/usage"
)

// Backend is the chat-completion upstream.
type Backend interface {
	Complete(ctx context.Context, body []byte) (*ir.ChatCompletionResponse, error)
	CompleteRaw(ctx context.Context, body []byte) ([]byte, error)
	Stream(ctx context.Context, body []byte) (io.ReadCloser, error)
}

type Options struct {
	Backend          Backend
	Registry         *registry.ModelRegistry
	Resolver         *registry.Resolver
	Usage            *usage.Recorder
	DefaultMaxTokens int
}

type Handler struct {
	backend          Backend
	registry         *registry.ModelRegistry
	resolver         *registry.Resolver
	usage            *usage.Recorder
	defaultMaxTokens atomic.Int64
}

func New(opts Options) *Handler {
	h := &Handler{
		backend:  opts.Backend,
		registry: opts.Registry,
		resolver: opts.Resolver,
		usage:    opts.Usage,
	}
	h.SetDefaultMaxTokens(opts.DefaultMaxTokens)
	return h
}

// SetDefaultMaxTokens changes the max_tokens used when a client omits it. 0 leaves it unset.
func (h *Handler) SetDefaultMaxTokens(n int) {
	h.defaultMaxTokens.Store(int64(n))
}

// Register mounts the proxy routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/messages", h.Messages)
	r.POST("/v1/messages/count_tokens", h.CountTokens)
	r.POST("/v1/chat/completions", h.ChatCompletions)
	r.POST("/chat/completions", h.ChatCompletions)
	r.GET("/v1/models", h.ListModels)
	r.GET("/models", h.ListModels)
	r.GET("/v1/models/*id", h.GetModel)
}

func (h *Handler) catalog() *registry.Catalog {
	if h.registry == nil {
		return registry.NewCatalog(nil)
	}
	return h.registry.Snapshot()
}

func (h *Handler) resolve(model string) string {
	if h.resolver == nil {
		return model
	}
	return h.resolver.Resolve(model, h.catalog())
}

func (h *Handler) record(c *gin.Context, rec usage.Record, start time.Time) {
	rec.Endpoint = c.FullPath()
	rec.Latency = time.Since(start)
	rec.RequestedAt = start
	h.usage.Record(rec)
}
