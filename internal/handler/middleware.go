package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	pseudoKey       = "pseudo"
)

// requestID reuses the caller's X-Request-ID or mints one.
func (h *HTTPHandler) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

func (h *HTTPHandler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	fields := []zap.Field{
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	}
	if p := c.GetString(pseudoKey); p != "" {
		fields = append(fields, zap.String("pseudo", p))
	}
	if c.Writer.Status() >= 500 {
		h.log.Warn("request failed", fields...)
		return
	}
	h.log.Debug("request", fields...)
}

// authMiddleware resolves the bearer token into the caller's pseudo.
func (h *HTTPHandler) authMiddleware(c *gin.Context) {
	p, err := h.tokens.PseudoFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		h.unauthorized(c, "UNAUTHORIZED", "missing or invalid bearer token")
		return
	}
	c.Set(pseudoKey, p)
	c.Next()
}

func pseudo(c *gin.Context) string {
	return c.GetString(pseudoKey)
}
