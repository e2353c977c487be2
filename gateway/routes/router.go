package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"epkfarm/gateway/middleware"
)

type Config struct {
	Node           FarmService
	History        EventHistory
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	HealthHandler  http.Handler
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	// ServiceName labels server spans.
	ServiceName string
}

// New builds the gateway handler. Every request is traced through otelhttp.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware())
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Handle("/healthz", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Node != nil {
		fr := &farmRoutes{
			node:    cfg.Node,
			history: cfg.History,
			auth:    cfg.Authenticator,
			timeout: cfg.RequestTimeout,
		}
		r.Route("/v1/farm", fr.mount)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "epkfarm-gateway"
	}
	return otelhttp.NewHandler(r, name)
}
