// Package api provides the HTTP API for airvoice.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/api/handler"
	"github.com/breatheroute/airvoice/internal/api/middleware"
	"github.com/breatheroute/airvoice/internal/api/response"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics

	Sessions handler.Sessions
	Registry *resilience.Registry
	Ingress  []handler.IngressCheck

	// EventRateLimit bounds per-session event posts. Zero uses
	// middleware.EventRateLimit.
	EventRateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airvoice"
	}
	eventLimit := cfg.EventRateLimit
	if eventLimit.RequestLimit <= 0 || eventLimit.WindowLength <= 0 {
		eventLimit = middleware.EventRateLimit
	}

	// Order matters: ids and spans first so logs and problems can reference them.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Sessions:  cfg.Sessions,
		Ingress:   cfg.Ingress,
	})
	webhookHandler := handler.NewWebhookHandler(cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions)

	r.With(middleware.RateLimitByIP(middleware.WebhookRateLimit)).Post("/webhook", webhookHandler.Handle)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitBySession(eventLimit))
				r.Post("/transcriptions", sessionHandler.PostTranscription)
				r.Post("/locations", sessionHandler.PostLocation)
			})
		})
	})

	return r
}
