package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/service"
)

// Metrics records request latency per route template. Unmatched paths share one label so
// scanners cannot blow up label cardinality; the long-lived notification stream is skipped.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		switch {
		case path == "":
			path = "unmatched"
		case path == "/metrics":
			return
		case strings.HasSuffix(path, "/stream"):
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
