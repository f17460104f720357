package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/community-digest/internal/producer"
	"github.com/ricirt/community-digest/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsPublished      prometheus.Counter
	ItemsPublishFailed  prometheus.Counter
	MessagesProcessed   *prometheus.CounterVec
	EnrichmentDuration  *prometheus.HistogramVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
}

// New registers every instrument on reg. Callers pass their own registry
// rather than prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "items_published_total",
			Help: "Envelopes acknowledged by the broker.",
		}),
		ItemsPublishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "items_publish_failed_total",
			Help: "Envelopes that could not be published.",
		}),
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Consumed messages by final action.",
		}, []string{"action"}),
		EnrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Latency of enrichment calls by result.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Envelopes waiting or in flight on the work queue.",
		}),
	}

	reg.MustRegister(
		m.ItemsPublished,
		m.ItemsPublishFailed,
		m.MessagesProcessed,
		m.EnrichmentDuration,
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.QueueDepth,
	)

	return m
}

// ProducerHooks returns the callbacks expected by producer.MetricHooks.
func (m *Metrics) ProducerHooks() producer.MetricHooks {
	return producer.MetricHooks{
		OnPublished:     m.ItemsPublished.Inc,
		OnPublishFailed: m.ItemsPublishFailed.Inc,
	}
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnProcessed: func(a worker.Action) {
			m.MessagesProcessed.WithLabelValues(a.String()).Inc()
		},
		OnEnrichment: func(result string, latency time.Duration) {
			m.EnrichmentDuration.WithLabelValues(result).Observe(latency.Seconds())
		},
	}
}

// UnmatchedPath labels requests that matched no route.
const UnmatchedPath = "unmatched"

// Middleware records request counts and latency. The path label is the
// matched chi route pattern, or UnmatchedPath when no route matched.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := UnmatchedPath
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}
