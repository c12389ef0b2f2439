package registry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RequestMetrics is the shared set of Prometheus collectors for the
// registry's HTTP surface.
type RequestMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewRequestMetrics registers the registry's request collectors
// against reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pathwell",
			Subsystem: "identity_registry",
			Name:      "http_request_duration_seconds",
			Help:      "Identity registry HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(m.Duration)
	return m
}

func (m *RequestMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		m.Duration.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// NewRouter assembles the identity registry's chi.Router: request
// logging, panic recovery, request-duration metrics, and a /metrics
// scrape endpoint alongside the handler routes.
func NewRouter(h *Handlers, logger *zap.Logger, reg *prometheus.Registry) chi.Router {
	metrics := NewRequestMetrics(reg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(zapRequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/developers/register", h.RegisterDeveloper)
		v1.Post("/agents/register", h.RegisterAgent)
		v1.Get("/agents/{agent_id}/validate", h.ValidateAgent)
		v1.Post("/agents/{agent_id}/revoke", h.RevokeAgent)

		v1.Post("/tenants", h.CreateTenant)
		v1.Post("/tenants/{tenant_id}/relationships", h.CreateTenantRelationship)
		v1.Get("/tenants/{tenant_id}/relationships", h.ListTenantRelationships)
		v1.Get("/tenants/{tenant_id}", h.GetTenant)
		v1.Get("/tenants/{tenant_id}/hierarchy", h.GetTenantHierarchy)
		v1.Patch("/tenants/{tenant_id}", h.UpdateTenant)
		v1.Delete("/tenants/{tenant_id}", h.DeactivateTenant)

		v1.Post("/trust/{entity_type}/{entity_id}", h.CreateTrustScore)
		v1.Get("/trust/{entity_type}/{entity_id}", h.GetTrustScore)
		v1.Patch("/trust/{entity_type}/{entity_id}", h.UpdateTrustDimension)
		v1.Get("/trust/{entity_type}/{entity_id}/history", h.GetTrustScoreHistory)
		v1.Get("/trust/{entity_type}/{entity_id}/risk-events", h.ListTrustRiskEvents)
		v1.Post("/trust/{entity_type}/{entity_id}/risk-events", h.CreateTrustRiskEvent)
	})

	r.Route("/v2", func(v2 chi.Router) {
		v2.Get("/agents/{agent_id}/validate", h.ValidateAgentV2)
	})

	return r
}

func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
