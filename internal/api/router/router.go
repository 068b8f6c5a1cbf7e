package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pointguardu/pgu-ai/internal/http/handlers"
	httpmiddleware "github.com/pointguardu/pgu-ai/internal/http/middleware"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	TwilioWebhooks     *handlers.TwilioWebhookHandler
	FollowUps          *handlers.FollowUpHandler
	Clients            *handlers.ClientHandler
	Dashboard          *handlers.DashboardHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Twilio webhooks (public; signature validation happens in the handler)
	if cfg.TwilioWebhooks != nil {
		r.Route("/webhooks/twilio", func(r chi.Router) {
			r.Post("/voice", cfg.TwilioWebhooks.Voice)
			r.Post("/status", cfg.TwilioWebhooks.StatusCallback)
			r.Post("/recording", cfg.TwilioWebhooks.Recording)
			r.Post("/sms", cfg.TwilioWebhooks.SMS)
		})
	}

	if cfg.FollowUps != nil {
		r.Post("/followups/send", cfg.FollowUps.Send)
	}

	if cfg.Clients != nil {
		r.Route("/api", func(r chi.Router) {
			r.Post("/clients", cfg.Clients.Create)
			r.Get("/clients", cfg.Clients.List)
			r.Get("/clients/{clientID}", cfg.Clients.Get)
			r.Get("/clients/{clientID}/missed-calls", cfg.Clients.MissedCalls)
			r.Get("/missed-calls/{callSid}/conversation", cfg.Clients.Conversation)
			if cfg.Dashboard != nil {
				r.Get("/dashboard/stats", cfg.Dashboard.Stats)
			}
		})
		r.Post("/scrape/faq", cfg.Clients.ScrapeFAQ)
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
