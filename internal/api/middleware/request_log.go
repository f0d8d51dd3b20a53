package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录每个请求的元数据并更新 HTTP 指标。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		if logger != nil {
			logger.Info("http request",
				slog.String("method", method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.String("client_ip", c.ClientIP()),
				slog.String("latency", latency.String()),
				slog.String("request_id", c.GetString(requestIDKey)),
			)
		}
	}
}
