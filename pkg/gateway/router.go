package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RequestMetrics is the shared set of Prometheus collectors for the
// gateway's HTTP surface.
type RequestMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewRequestMetrics registers the gateway's request collectors against
// reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pathwell",
			Subsystem: "proxy_gateway",
			Name:      "http_request_duration_seconds",
			Help:      "Proxy gateway HTTP request duration in seconds.",
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
		m.Duration.WithLabelValues(r.URL.Path, r.Method, http.StatusText(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// NewRouter assembles the proxy gateway's chi.Router: a reserved health
// endpoint, a /metrics scrape endpoint, and a catch-all that intercepts
// every other method and path through the gateway's request pipeline.
func NewRouter(h *Handler, logger *zap.Logger, reg *prometheus.Registry) chi.Router {
	metrics := NewRequestMetrics(reg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(zapRequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Handle("/*", h)

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
