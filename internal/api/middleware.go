package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
)

// corsMiddleware returns a Gin middleware handler that adds CORS headers
// to every response, allowing cross-origin requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestMetrics counts requests by route template and final status.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// setupMiddleware applies global middleware: logging, recovery, metrics, CORS.
func (s *Server) setupMiddleware(extra []gin.HandlerFunc) {
	s.engine.Use(logging.GinLogrusLogger())
	s.engine.Use(logging.GinLogrusRecovery())
	s.engine.Use(requestMetrics())
	for _, mw := range extra {
		s.engine.Use(mw)
	}
	s.engine.Use(corsMiddleware())
}
