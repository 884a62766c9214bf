package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/chatbot-proxy/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/chatbot-proxy/internal/http/middleware"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	CCaaSWebhook   *handlers.CCaaSWebhookHandler
	MetricsHandler http.Handler

	// WebhookRateLimit is requests per second per source; zero disables it.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.CCaaSWebhook == nil {
		panic("router: ccaas webhook handler is required")
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.FlowID)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", cfg.CCaaSWebhook.Status)
	r.Get("/health", cfg.CCaaSWebhook.HealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
		r.Post("/", cfg.CCaaSWebhook.HandleMessage)
		r.Post("/webhooks/ccaas", cfg.CCaaSWebhook.HandleMessage)
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
