// Package api provides the HTTP API for the application.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/infinitune/roomserver/internal/api/handlers"
	appMiddleware "github.com/infinitune/roomserver/internal/api/middleware"
	"github.com/infinitune/roomserver/internal/auth"
	"github.com/infinitune/roomserver/internal/config"
	"github.com/infinitune/roomserver/internal/db/redis"
	"github.com/infinitune/roomserver/internal/edge"
	"github.com/infinitune/roomserver/internal/metrics"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// Router is the main HTTP router for the API.
type Router struct {
	*chi.Mux
	logger *utils.Logger
}

// NewRouter creates a new API router.
func NewRouter(
	roster *room.Roster,
	directory edge.Directory,
	edgeServer *edge.Edge,
	bearer *auth.JWTVerifier,
	devices *auth.DeviceVerifier,
	limiter *redis.RateLimiter,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *utils.Logger,
) *Router {
	r := chi.NewRouter()
	apiLogger := logger.Named("api")

	// Create middleware
	recoveryMiddleware := appMiddleware.NewRecoveryMiddleware(apiLogger)
	loggerMiddleware := appMiddleware.NewLoggerMiddleware(apiLogger)
	corsConfig := appMiddleware.DefaultCORSConfig()
	if len(cfg.Auth.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.Auth.AllowedOrigins
	}
	corsMiddleware := appMiddleware.NewCORSMiddleware(corsConfig, apiLogger)
	authMiddleware := appMiddleware.NewAuthMiddleware(bearer, devices, apiLogger)
	rateLimitMiddleware := appMiddleware.NewRateLimitMiddleware(limiter, redis.RateLimit{
		Key:         "api",
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
	}, apiLogger)

	// Create handlers
	roomHandler := handlers.NewRoomHandler(roster, directory, apiLogger)
	healthHandler := handlers.NewHealthHandler(roster, apiLogger)
	openAPIHandler := handlers.NewOpenAPIHandler()

	// Apply global middleware
	r.Use(recoveryMiddleware.Recovery)
	r.Use(loggerMiddleware.Logger)
	r.Use(corsMiddleware.CORS)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Method("GET", "/metrics", m.Handler())
		r.Get("/ws", edgeServer.HandleWebSocket)
	})

	// Control-plane routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", openAPIHandler.Document)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Use(rateLimitMiddleware.Limit)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", roomHandler.ListRooms)
				r.Post("/", roomHandler.CreateRoom)
				r.Delete("/{id}", roomHandler.DeleteRoom)
			})
			r.Get("/now-playing", roomHandler.NowPlaying)
		})
	})

	return &Router{
		Mux:    r,
		logger: apiLogger,
	}
}
