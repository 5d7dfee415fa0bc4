package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"convoy/internal/metrics"
)

// Metrics counts requests and records their latency by route template, so
// /sos/abc and /sos/def share one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}
