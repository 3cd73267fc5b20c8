package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors shared by the API and the processor
// loop.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	deliveredTotal         *prometheus.CounterVec
	deliveryFailedTotal    *prometheus.CounterVec
	retryScheduledTotal    *prometheus.CounterVec
	sendDuration           *prometheus.HistogramVec
	processorCycleDuration prometheus.Histogram
	processorBatchSize     prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_delivered_total",
				Help:      "Total number of notifications delivered successfully.",
			},
			[]string{"method"},
		),
		deliveryFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_failed_total",
				Help:      "Total number of notifications that ended in failed state.",
			},
			[]string{"method", "reason"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_retry_scheduled_total",
				Help:      "Total number of notifications left in retrying state.",
			},
			[]string{"method"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "notification_send_duration_seconds",
				Help:      "Handler send duration in seconds grouped by delivery method.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"method"},
		),
		processorCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "processor_cycle_duration_seconds",
				Help:      "Duration of a full processor poll cycle in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		processorBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "processor_batch_size",
				Help:      "Number of log rows handled per processor cycle.",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveredTotal,
		m.deliveryFailedTotal,
		m.retryScheduledTotal,
		m.sendDuration,
		m.processorCycleDuration,
		m.processorBatchSize,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDelivered(method string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(normalizeMethod(method)).Inc()
}

func (m *Metrics) IncDeliveryFailed(method string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.deliveryFailedTotal.WithLabelValues(normalizeMethod(method), reasonLabel).Inc()
}

func (m *Metrics) IncRetryScheduled(method string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeMethod(method)).Inc()
}

func (m *Metrics) ObserveSendDuration(method string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeMethod(method)).Observe(seconds)
}

func (m *Metrics) ObserveProcessorCycle(duration time.Duration, processed int) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.processorCycleDuration.Observe(seconds)
	m.processorBatchSize.Observe(float64(processed))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeMethod(method string) string {
	normalized := strings.ToLower(strings.TrimSpace(method))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
