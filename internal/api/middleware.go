package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vodhub/vodhub/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request id to every request, generating one when
// the caller did not send one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Request = c.Request.WithContext(
			logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// RequestLogger emits one structured line per request. Requests that
// matched no route are only logged when logUnmanaged is set; scanners
// probing random paths would otherwise flood the log.
func RequestLogger(logUnmanaged bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "" && !logUnmanaged {
			return
		}

		logger.AppLogger().WithFields(map[string]interface{}{
			"request_id":  c.Writer.Header().Get(requestIDHeader),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	}
}
