// Package ratelimit provides token-bucket admission control for inbound requests.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"golang.org/x/time/rate"
)

// Limiter is a process-wide token bucket whose limits can change at runtime.
type Limiter struct {
	lim  *rate.Limiter
	wait atomic.Bool
}

func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{lim: rate.NewLimiter(rate.Inf, 0)}
	l.Update(cfg)
	return l
}

// Update applies new limits. RequestsPerSecond <= 0 disables limiting.
func (l *Limiter) Update(cfg config.RateLimitConfig) {
	if cfg.RequestsPerSecond <= 0 {
		l.lim.SetLimit(rate.Inf)
	} else {
		l.lim.SetLimit(rate.Limit(cfg.RequestsPerSecond))
		l.lim.SetBurst(cfg.Burst)
	}
	l.wait.Store(cfg.Wait)
}

func (l *Limiter) Enabled() bool {
	return l.lim.Limit() != rate.Inf
}

func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// retryAfter estimates how long until a token is free, rounded up to whole seconds.
func (l *Limiter) retryAfter() int {
	r := l.lim.Reserve()
	if !r.OK() {
		return 1
	}
	delay := r.Delay()
	r.Cancel()
	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Middleware rejects requests over the limit with 429 and a message-protocol error body,
// or queues them when waiting is configured.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() {
			c.Next()
			return
		}
		if l.wait.Load() {
			start := time.Now()
			if err := l.Wait(c.Request.Context()); err != nil {
				reject(c, l.retryAfter())
				return
			}
			if waited := time.Since(start); waited > time.Second {
				log.Debugf("rate limiter: request waited %v", waited.Round(time.Millisecond))
			}
			c.Next()
			return
		}
		if !l.Allow() {
			reject(c, l.retryAfter())
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, retryAfter int) {
	metrics.RateLimitedTotal.Inc()
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests,
		ir.NewErrorResponse(ir.ClaudeErrRateLimit, "rate limit exceeded, retry later"))
}
