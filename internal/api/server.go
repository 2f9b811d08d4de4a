// Package api provides the HTTP server for the proxy.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/api/handlers/management"
	"github.com/nghyane/msgproxy/internal/api/handlers/proxy"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
	"github.com/nghyane/msgproxy/internal/ratelimit"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/usage"
)

type Options struct {
	Config     *config.Config
	ConfigPath string
	Backend    proxy.Backend
	Registry   *registry.ModelRegistry
	Resolver   *registry.Resolver
	Limiter    *ratelimit.Limiter
	Usage      *usage.Recorder
	// Middleware runs after recovery and before CORS on every route.
	Middleware []gin.HandlerFunc
}

// Server wires the gin engine to the proxy and management handlers.
type Server struct {
	engine   *gin.Engine
	server   *http.Server
	proxy    *proxy.Handler
	registry *registry.ModelRegistry
	cfg      atomic.Pointer[config.Config]
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{engine: gin.New(), registry: opts.Registry}
	s.cfg.Store(cfg)
	s.setupMiddleware(opts.Middleware)

	s.proxy = proxy.New(proxy.Options{
		Backend:          opts.Backend,
		Registry:         opts.Registry,
		Resolver:         opts.Resolver,
		Usage:            opts.Usage,
		DefaultMaxTokens: cfg.DefaultMaxTokens,
	})
	api := s.engine.Group("")
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Middleware())
	}
	s.proxy.Register(api)

	management.NewHandler(management.Options{
		ConfigPath: opts.ConfigPath,
		Config:     s.Config,
		Usage:      opts.Usage,
		Registry:   opts.Registry,
		Resolver:   opts.Resolver,
	}).Register(s.engine)

	s.engine.GET("/healthz", s.healthz)
	if cfg.Metrics.Enabled {
		s.engine.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Config returns the config currently in effect.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// ApplyConfig takes the hot-reloadable settings from cfg. Listener settings are fixed at start.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	s.proxy.SetDefaultMaxTokens(cfg.DefaultMaxTokens)
}

func (s *Server) healthz(c *gin.Context) {
	models := 0
	if s.registry != nil {
		models = s.registry.Snapshot().Len()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "models": models})
}

// Start listens until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Infof("msgproxy listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
