// Package management serves local administration endpoints under /v0/management.
package management

import (
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/config"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/usage"
)

const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeInvalidConfig  = "invalid_config"
	ErrCodeWriteFailed    = "write_failed"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeForbidden      = "forbidden"
	ErrCodeQueryFailed    = "query_failed"
)

type Options struct {
	ConfigPath string
	// Config returns the config currently in effect.
	Config   func() *config.Config
	Usage    *usage.Recorder
	Registry *registry.ModelRegistry
	Resolver *registry.Resolver
	// AllowRemote serves management routes to non-loopback clients.
	AllowRemote bool
}

type Handler struct {
	configPath  string
	config      func() *config.Config
	usage       *usage.Recorder
	registry    *registry.ModelRegistry
	resolver    *registry.Resolver
	allowRemote bool

	// serializes config file writes
	mu sync.Mutex
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		configPath:  opts.ConfigPath,
		config:      opts.Config,
		usage:       opts.Usage,
		registry:    opts.Registry,
		resolver:    opts.Resolver,
		allowRemote: opts.AllowRemote,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v0/management", h.localOnly())
	g.GET("/config", h.GetConfig)
	g.PUT("/config.yaml", h.PutConfigYAML)
	g.GET("/usage", h.GetUsage)
	g.GET("/resolve", h.GetResolve)
}

// localOnly rejects clients that are not on the loopback interface.
func (h *Handler) localOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.allowRemote {
			c.Next()
			return
		}
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			respondError(c, http.StatusForbidden, ErrCodeForbidden, "management endpoints are only available from localhost")
			return
		}
		c.Next()
	}
}

func respondOK(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}
