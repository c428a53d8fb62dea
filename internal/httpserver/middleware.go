package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/pkg/metrics"
	"github.com/stablelab/growth-milestone-service/pkg/trace"
)

const apiKeyHeader = "X-API-Key"

// AuthMiddleware rejects requests whose shared-secret header does not
// exactly match the configured key.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// TraceMiddleware honors an inbound X-Trace-ID, generates one otherwise,
// and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogMiddleware logs every request and records its latency.
func RequestLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
		)
		metrics.RecordHTTPRequestDuration(c.Request.Method, c.FullPath(), strconv.Itoa(status), latency)
	}
}
