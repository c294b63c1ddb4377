package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// LifecycleOperations counts engine operations by outcome (ok, conflict, validation, ...)
	LifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_operations_total",
			Help: "Total number of lending lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// SweptUnits counts units reverted to available by the consistency sweeper
	SweptUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_swept_units_total",
			Help: "Units reverted to available by the consistency sweeper",
		},
		[]string{"kind"},
	)

	// UsersBlocked counts automatic blocks triggered by strikes
	UsersBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lending_users_blocked_total",
			Help: "Users automatically blocked after reaching the strike threshold",
		},
	)

	// NotificationFailures counts dispatcher errors (never affect the operation)
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_notification_failures_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"dispatcher", "event"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "circuit_name"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}
