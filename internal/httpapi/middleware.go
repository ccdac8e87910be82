package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger пишет каждый запрос в logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		})

		switch {
		case status >= 500:
			entry.Error("HTTP запрос")
		case status >= 400:
			entry.Warn("HTTP запрос")
		default:
			entry.Debug("HTTP запрос")
		}
	}
}
