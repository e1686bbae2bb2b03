package middleware

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/respond"
)

const (
	APIKeyHeader    = "X-API-Key"
	maxRequestIDLen = 128
)

// RequestID reuses the caller's X-Request-ID or generates one, stores it in
// the request context and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(reqctx.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(reqctx.WithRequestID(c.Request.Context(), id))
		c.Header(reqctx.HeaderRequestID, id)
		c.Next()
	}
}

// Logger logs one line per request.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"request_id", reqctx.RequestID(c.Request.Context()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if status >= 500 {
			logger.Error("http request", attrs...)
			return
		}
		logger.Info("http request", attrs...)
	}
}

// APIKeyAuth requires key in X-API-Key. An empty key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			respond.Fail(c, apperr.New(apperr.CodeUnauthorized, "invalid API key", nil))
			return
		}
		c.Next()
	}
}

// Recovery turns panics into INTERNAL_ERROR envelopes.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", "path", c.Request.URL.Path, "panic", recovered)
		respond.Fail(c, apperr.New(apperr.CodeInternal, "internal server error", nil))
	})
}
