package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/api/middleware"
	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/config"
	"github.com/angar2/cola-chat-back/internal/handlers"
	"github.com/angar2/cola-chat-back/internal/store"
	"github.com/angar2/cola-chat-back/internal/ws"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, svc *chat.Service, stores *store.Stores, hub *ws.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics first so every request is counted
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))
	r.Use(middleware.ValidateRequest)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if stores.Redis != nil {
		limiter := middleware.NewRateLimiter(stores.Redis.Client(), middleware.DefaultLimits, logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(svc, stores, hub, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Get("/api", h.Root)
	r.Get("/ws", hub.Handler(svc))

	r.Route("/chat", func(r chi.Router) {
		r.Get("/stats", h.Stats)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Get("/", h.ListRooms)
			r.Get("/{roomId}", h.GetRoom)
			r.Post("/{roomId}/access-check", h.AccessCheck)
			r.Get("/{roomId}/chatters", h.RoomChatters)
		})

		r.Get("/messages/{roomId}/{page}", h.Messages)
		r.Get("/messages/{roomId}/{page}/{chatterId}", h.Messages)

		r.Get("/chatters/{chatterId}", h.GetChatter)
		r.Patch("/chatters/{chatterId}/nickname", h.RenameChatter)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Fail(w, http.StatusNotFound, chat.CodeInvalidData, "route not found")
	})

	return r
}
