package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/config"
	"github.com/ShaheerQidwai/chat-app/internal/handlers"
	"github.com/ShaheerQidwai/chat-app/internal/realtime"
	"github.com/ShaheerQidwai/chat-app/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, dataStore store.DataStore, redisStore *store.RedisStore, engine *realtime.Engine) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist: cfg.RateLimitWhitelist,
	})
	r.Use(limiter.Middleware)

	// CORS - the frontend is served from its own origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(dataStore, cfg.JWTSecret)
	h := handlers.NewHandler(dataStore, redisStore, engine, auth)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)
	r.Post("/api/users", h.Register)

	// Websocket endpoint; auth reads the token from the query string
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/ws", engine.ServeWS)
	})

	// Authenticated REST surface
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/me", h.Me)
		r.Get("/users", h.ListUsers)

		r.Get("/chats", h.ListChats)
		r.Post("/chats/direct/{userID}", h.CreateDirectChat)

		r.Post("/messages", h.SendMessage)
		r.Get("/messages/{userID}", h.GetHistory)
		r.Patch("/messages/{id}/read", h.MarkRead)
		r.Post("/messages/{id}/react", h.React)

		r.Post("/groups", h.CreateGroup)
		r.Get("/groups", h.ListGroups)
		r.Get("/groups/{id}/messages", h.GetGroupMessages)
		r.Post("/groups/{id}/messages", h.SendGroupMessage)
	})

	return r
}
