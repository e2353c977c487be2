package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"epkfarm/observability"
)

type ObservabilityConfig struct {
	LogRequests bool
}

type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
}

// NewObservability records request outcomes and latency in the gateway
// metrics, labelled by method and matched route pattern.
func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{cfg: cfg, logger: logger.With("component", "gateway")}
}

func (o *Observability) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			observability.Gateway().Observe(r.Method+" "+route, recorder.status, elapsed)
			if o.cfg.LogRequests {
				o.logger.Info("request",
					"method", r.Method,
					"route", route,
					"status", strconv.Itoa(recorder.status),
					"duration_ms", float64(elapsed.Microseconds())/1000)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
