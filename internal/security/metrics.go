package security

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// ToolCallsTotal counts MCP tool invocations by tool name and outcome.
	ToolCallsTotal *prometheus.CounterVec

	// ToolCallDuration records end-to-end tool latency, including any embedding call.
	ToolCallDuration *prometheus.HistogramVec

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge
)

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics. Safe to call multiple times;
// only the first call registers.
func InitMetrics() {
	initMetricsOnce.Do(initMetricsInner)
}

func initMetricsInner() {
	f := promauto.With(prometheus.DefaultRegisterer)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_mcp_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_mcp_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ToolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_mcp_tool_calls_total",
			Help: "Total MCP tool invocations",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_mcp_tool_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "memory_mcp_db_pool_open_connections",
		Help: "Number of open database connections",
	})
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
