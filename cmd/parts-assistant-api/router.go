// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/machineparts/parts-assistant/cmd/parts-assistant-api/handlers"
	"github.com/machineparts/parts-assistant/cmd/parts-assistant-api/middleware"
	"github.com/machineparts/parts-assistant/internal/api/connectapi"
	"github.com/machineparts/parts-assistant/internal/app"
)

// RouterConfig holds the HTTP-only settings of the API.
type RouterConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	Now            func() time.Time
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(a *app.App, cfg RouterConfig) http.Handler {
	logger := a.Logger
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	// Forwarding headers are client-controlled unless a proxy rewrites them,
	// and the rate limiter keys on RemoteAddr.
	if a.Config.Server.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	if a.Config.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(a.Config.RateLimit).Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"parts-assistant"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			handlers.WriteError(w, r, logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	catalog := handlers.NewCatalogHandler(logger, handlers.CatalogDeps{
		Interpreter: a.Interpreter,
		Symptoms:    a.Symptoms,
		Validator:   a.Validator,
		Recommender: a.Recommender,
		Taxonomy:    a.Taxonomy,
		Knowledge:   a.Knowledge,
		Recorder:    a.Recorder,
	})
	conversations := handlers.NewConversationHandler(logger, a.Conversations, a.Chat)
	escalations := handlers.NewEscalationHandler(logger, a.Conversations, a.Support, cfg.Now)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", catalog.Analyze)
		r.Post("/symptoms/map", catalog.MapSymptoms)
		r.Get("/compatibility/{modelId}/{productId}", catalog.Compatibility)
		r.Get("/recommendations/{modelId}", catalog.Recommendations)
		r.Get("/taxonomy", catalog.Taxonomy)
		r.Get("/knowledge/search", catalog.SearchKnowledge)

		r.Post("/chat", conversations.Chat)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversations.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversations.Get)
				r.Get("/messages", conversations.Messages)
				r.Post("/messages", conversations.PostMessage)
				r.Post("/escalate", conversations.Escalate)
				r.Post("/close", conversations.Close)
				r.Get("/context", conversations.GetContext)
				r.Put("/context/{type}", conversations.SetContext)
			})
		})

		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", escalations.List)
			r.Get("/{id}/queue", escalations.Queue)
			r.Post("/{id}/assign", escalations.Assign)
			r.Post("/{id}/resolve", escalations.Resolve)
		})

		r.Get("/support/availability", escalations.SupportAvailability)
		r.Get("/customers/{customerId}/machines", conversations.CustomerMachines)
	})

	svc := connectapi.NewAssistantService(logger, connectapi.Deps{
		Interpreter:   a.Interpreter,
		Symptoms:      a.Symptoms,
		Validator:     a.Validator,
		Recommender:   a.Recommender,
		Conversations: a.Conversations,
		Chat:          a.Chat,
		Support:       a.Support,
		Now:           cfg.Now,
	})
	r.Mount("/connect", http.StripPrefix("/connect", svc.Handler()))

	return r
}
