package receiptstore

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
// receipt store's HTTP surface.
type RequestMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewRequestMetrics registers the receipt store's request collectors
// against reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pathwell",
			Subsystem: "receipt_store",
			Name:      "http_request_duration_seconds",
			Help:      "Receipt store HTTP request duration in seconds.",
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

// NewRouter assembles the receipt store's chi.Router: request logging,
// panic recovery, request-duration metrics, a /metrics scrape endpoint,
// and the write/read handler routes.
func NewRouter(h *Handlers, logger *zap.Logger, reg *prometheus.Registry) chi.Router {
	metrics := NewRequestMetrics(reg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(zapRequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/receipts", h.WriteReceipt)
		v1.Post("/events/external", h.WriteExternalEvent)

		v1.Get("/lookup/{correlation_id}", h.LookupByCorrelation)

		v1.Get("/traces", h.ListTraces)
		v1.Get("/traces/{trace_id}", h.GetTrace)
		v1.Get("/traces/{trace_id}/timeline", h.GetTimeline)
		v1.Get("/traces/{trace_id}/decisions", h.GetDecisionTree)
		v1.Get("/traces/{trace_id}/trust-events", h.ListTrustEvents)
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
