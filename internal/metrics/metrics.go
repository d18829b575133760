// Package metrics provides Prometheus instrumentation for gigboard.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigboard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gigboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// --- Gig lifecycle ---

	GigsPostedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "gigs_posted_total",
		Help:      "Total gigs posted with funded escrow.",
	})

	GigsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "gigs_completed_total",
		Help:      "Total gigs approved by their poster.",
	})

	GigsAutoApprovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "gigs_auto_approved_total",
		Help:      "Total gigs auto-approved after the review deadline.",
	})

	GigsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "gigs_cancelled_total",
		Help:      "Total gigs cancelled (withdrawn or compensated).",
	})

	// ActiveGigs tracks the size of the in-memory active-gig index.
	ActiveGigs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gigboard",
		Name:      "active_gigs",
		Help:      "Number of gigs currently in a non-terminal state.",
	})

	// --- Escrow safety ---

	EscrowCompensationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "escrow_compensations_total",
		Help:      "Total compensating refunds triggered by approval failures.",
	})

	// EscrowCriticalAlarmsTotal counts fund-safety failures needing an
	// operator: failed refunds, failed claw-backs, stale rows after a
	// refund. Alert on any increase.
	EscrowCriticalAlarmsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "escrow_critical_alarms_total",
		Help:      "Total escrow failures requiring operator intervention.",
	})

	// --- Connection pool ---

	PoolIdleHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gigboard", Name: "pool_idle_handles",
		Help: "Number of idle pooled persistence handles.",
	})
	PoolOpenHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gigboard", Name: "pool_open_handles",
		Help: "Number of live pooled persistence handles (idle + checked out).",
	})
	PoolAcquiresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard", Name: "pool_acquires_total",
		Help: "Total handle acquisitions from the pool.",
	})
	PoolFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gigboard", Name: "pool_fallback_total",
		Help: "Total acquisitions served by the shared fallback handle.",
	})

	// ActiveWebSocketClients tracks connected event-feed subscribers.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gigboard",
		Name:      "active_websocket_clients",
		Help:      "Number of connected event-feed WebSocket clients.",
	})

	// NotificationsTotal counts lifecycle notifications by outcome.
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigboard",
		Name:      "notifications_total",
		Help:      "Total lifecycle notifications emitted by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GigsPostedTotal,
		GigsCompletedTotal,
		GigsAutoApprovedTotal,
		GigsCancelledTotal,
		ActiveGigs,
		EscrowCompensationsTotal,
		EscrowCriticalAlarmsTotal,
		PoolIdleHandles,
		PoolOpenHandles,
		PoolAcquiresTotal,
		PoolFallbackTotal,
		ActiveWebSocketClients,
		NotificationsTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
