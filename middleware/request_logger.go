package middleware

import (
	"time"

	"contractdesk-backend/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request once it has been served
func RequestLogger(log logger.ILogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		details := map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": GetRequestID(c),
		}
		if query != "" {
			details["query"] = query
		}
		if len(c.Errors) > 0 {
			details["errors"] = c.Errors.String()
		}

		switch {
		case status >= 500:
			log.Error("HTTP", "request completed", details)
		case status >= 400:
			log.Warn("HTTP", "request completed", details)
		default:
			log.Info("HTTP", "request completed", details)
		}
	}
}
