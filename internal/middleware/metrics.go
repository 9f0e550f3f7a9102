package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testbridge/exam-sync-api/internal/service"
)

// Metrics observes every request on the shared registry. The route template
// is preferred over the raw path so token and id segments do not explode
// label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
