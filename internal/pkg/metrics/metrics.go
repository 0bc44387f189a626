package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetpoint",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetpoint",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Oracle metrics
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Travel-time matrix requests by outcome code",
	}, []string{"mode", "outcome"})

	OracleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetpoint",
		Subsystem: "oracle",
		Name:      "call_duration_seconds",
		Help:      "Latency of travel-time matrix requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})

	OracleRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "oracle",
		Name:      "retries_total",
		Help:      "Matrix requests retried after a transient failure",
	})

	OracleFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "oracle",
		Name:      "anchor_fallbacks_total",
		Help:      "Combined evaluations that fell back to anchors only",
	})

	// Search metrics
	HypothesisPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "search",
		Name:      "hypothesis_points_total",
		Help:      "Hypothesis points evaluated, by phase",
	}, []string{"phase"})

	UnreachablePoints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "search",
		Name:      "unreachable_points_total",
		Help:      "Hypothesis points dropped as unreachable",
	})

	RefinementGroupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "search",
		Name:      "refinement_group_failures_total",
		Help:      "Local refinement groups skipped after a failed evaluation",
	})

	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetpoint",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "End-to-end meeting point search duration",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"goal", "outcome"})

	SearchAPICalls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meetpoint",
		Subsystem: "search",
		Name:      "api_calls",
		Help:      "Oracle calls spent per search run",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meetpoint",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Cache operations that failed and were ignored",
	}, []string{"operation"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetpoint",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Result events published, by outcome",
	}, []string{"outcome"})
)

// ObserveOracleCall records one oracle request.
func ObserveOracleCall(mode, outcome string, d time.Duration) {
	OracleCalls.WithLabelValues(mode, outcome).Inc()
	OracleLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
