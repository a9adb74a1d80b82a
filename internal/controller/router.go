package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/storefront/internal/middleware"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	CheckoutService *service.CheckoutService
	WebhookService  *service.WebhookService
	SignatureHeader string
	IdempotencyRepo customMW.IdempotencyStore
	Breaker         breakerStater
	HealthChecks    []HealthCheck
	Metrics         *observability.Metrics
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer  prometheus.Gatherer
	CORS      config.CORSConfig
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	healthH := NewHealthController(deps.Breaker, deps.HealthChecks...)
	checkoutH := NewCheckoutController(deps.CheckoutService)
	webhookH := NewWebhookController(deps.WebhookService, deps.SignatureHeader)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Processor deliveries authenticate by signature, not by bearer token.
	r.Post("/webhooks/payments", webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Auth.JWTSecret != "" {
			r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))
		}

		checkout := []func(http.Handler) http.Handler{}
		if deps.RateLimit.CheckoutPerMinute > 0 {
			checkout = append(checkout, customMW.RateLimit(deps.RateLimit.CheckoutPerMinute))
		}
		if deps.IdempotencyRepo != nil {
			checkout = append(checkout, customMW.Idempotency(deps.IdempotencyRepo))
		}

		r.With(checkout...).Post("/checkout", checkoutH.CreateSession)
		r.Get("/orders/session/{session_id}", checkoutH.GetOrderBySession)
	})

	return r
}
