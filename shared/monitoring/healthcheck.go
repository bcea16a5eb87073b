package monitoring

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts /health, /status and /metrics on r. gatherer is the
// registry the metrics were created on.
func RegisterRoutes(r gin.IRoutes, m *Monitor, gatherer prometheus.Gatherer) {
	r.GET("/health", healthHandler(m))
	r.GET("/status", statusHandler(m))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func healthHandler(m *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsHealthy() {
			c.String(http.StatusOK, "OK - %s", m.GetStatusSummary())
			return
		}
		c.String(http.StatusServiceUnavailable, "Service unhealthy - %s", m.GetStatusSummary())
	}
}

func statusHandler(m *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "%s", m.GetStatusSummary())
	}
}
