package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"docdiff-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		fields := map[string]any{
			"request_id":  reqID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if jobID, ok := c.Get("jobId"); ok {
			fields["job_id"] = jobID
		}
		if comparisonID, ok := c.Get("comparisonId"); ok {
			fields["comparison_id"] = comparisonID
		}
		telemetry.Info("request.complete", fields)
	}
}
