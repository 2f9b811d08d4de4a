package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GinLogrusLogger logs one line per request through logrus.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		entry := logrus.WithFields(logrus.Fields{
			"status":  status,
			"latency": time.Since(start).Round(time.Millisecond),
			"client":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.ByType(gin.ErrorTypePrivate).String())
		}

		msg := fmt.Sprintf("%s %s", c.Request.Method, path)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

// GinLogrusRecovery recovers from handler panics and answers 500.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.WithFields(logrus.Fields{
			"panic": recovered,
			"path":  c.Request.URL.Path,
		}).Errorf("recovered from panic\n%s", debug.Stack())
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
