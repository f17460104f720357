package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/api/handler"
	apimw "github.com/ricirt/community-digest/internal/api/middleware"
	"github.com/ricirt/community-digest/internal/metrics"
	"github.com/ricirt/community-digest/internal/service"
)

// RouterConfig carries the knobs of the HTTP surface.
type RouterConfig struct {
	// Update requests allowed per client IP per minute; zero disables the limit.
	UpdateRateLimit int
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	cfg RouterConfig,
	svc *service.DigestService,
	db handler.Pinger,
	m *metrics.Metrics,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))
	if m != nil {
		r.Use(m.Middleware)
	}

	// --- handler instances ---
	dh := handler.NewDigestHandler(svc, logger)
	hh := handler.NewHealthHandler(db)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		update := r.With()
		if cfg.UpdateRateLimit > 0 {
			update = r.With(httprate.LimitByIP(cfg.UpdateRateLimit, time.Minute))
		}
		update.Post("/update", dh.Update)

		r.Get("/summary", dh.Summary)
		r.Get("/queue", dh.QueueDepth)
	})

	return r
}
