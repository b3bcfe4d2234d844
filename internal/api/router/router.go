package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cinechat/cinechat/internal/conversation"
	httpmiddleware "github.com/cinechat/cinechat/internal/http/middleware"
	"github.com/cinechat/cinechat/internal/messaging"
	"github.com/cinechat/cinechat/internal/services"
	"github.com/cinechat/cinechat/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	Registry            *services.Registry
	ConversationHandler *conversation.Handler
	MessagingHandler    *messaging.Handler
	MetricsHandler      http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.MessagingHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Reports "Unknown" handles until initialization completes, so it
		// stays outside the readiness gate.
		api.Get("/services", cfg.ConversationHandler.Services)

		api.Group(func(gated chi.Router) {
			gated.Use(requireReady(cfg.Registry))
			gated.Post("/create_conversation", cfg.ConversationHandler.CreateConversation)
			gated.Post("/conversation", cfg.ConversationHandler.Converse)
			gated.Get("/movies", cfg.ConversationHandler.Movies)
			gated.Get("/twillio", cfg.MessagingHandler.TwilioWebhook)
		})
	})

	return r
}

// requireReady rejects requests until the remote collaborators finished
// initializing, instead of letting a turn dereference an absent handle.
func requireReady(reg *services.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg != nil && !reg.Ready() {
				http.Error(w, "Service initializing", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
