package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/infinitune/roomserver/internal/api"
	"github.com/infinitune/roomserver/internal/auth"
	"github.com/infinitune/roomserver/internal/bridge"
	"github.com/infinitune/roomserver/internal/bus"
	"github.com/infinitune/roomserver/internal/config"
	"github.com/infinitune/roomserver/internal/db/mongo"
	"github.com/infinitune/roomserver/internal/db/mongo/repositories"
	"github.com/infinitune/roomserver/internal/db/redis"
	"github.com/infinitune/roomserver/internal/edge"
	"github.com/infinitune/roomserver/internal/metrics"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// convert logger level to zapcore.Level
func hLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "panic":
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func main() {
	// Create a context that will be canceled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received shutdown signal")
		cancel()
	}()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerOptions := utils.LoggerOptions{
		Development: cfg.Environment == "development",
		Level:       hLevel(cfg.Logging.Level),
		OutputPaths: cfg.Logging.OutputPaths,
	}
	logger := utils.NewLogger(loggerOptions)
	logger.Info("Starting room server", "environment", cfg.Environment)

	// Initialize MongoDB client
	mongoClient, err := mongo.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect from MongoDB", err)
		}
	}()

	// Initialize MongoDB repositories
	store := repositories.NewStore(mongoClient.Database(), logger)
	deviceRepo := repositories.NewDeviceRepository(mongoClient.Database(), logger)

	// Initialize Redis. The address is optional; without it the REST surface
	// runs unthrottled.
	var rateLimiter *redis.RateLimiter
	if cfg.Database.Redis.Address != "" {
		redisClient, err := redis.NewClient(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", err)
		}
		defer redisClient.Close()
		rateLimiter = redis.NewRateLimiter(redisClient)
	}

	// Initialize the storage bridge and the roster. The roster writes played
	// state through the bridge while the bridge fans queue refreshes out to
	// the roster's rooms, so the sink index is bound in a second step.
	var m *metrics.Metrics
	storageBridge := bridge.New(store, nil, cfg.Database.MongoDB.Timeout, logger)
	roster := room.NewRoster(storageBridge, room.Options{
		GraceInterval:     cfg.Room.GraceInterval,
		JoinLatencyBudget: cfg.Room.JoinLatencyBudget,
		PingWindow:        cfg.Room.PingWindow,
		OnTransition: func() {
			if m != nil {
				m.TransitionExecuted()
			}
		},
	}, logger)
	storageBridge.BindSinks(bridge.RosterIndex(roster))

	// Initialize metrics
	m = metrics.New(roster, logger)

	// Initialize the invalidation bus consumer
	consumer := bus.NewConsumer(bus.Options{
		URL:          cfg.Bus.URL,
		Exchange:     cfg.Bus.Exchange,
		ReconnectMin: cfg.Bus.ReconnectMin,
		ReconnectMax: cfg.Bus.ReconnectMax,
	}, bus.HandlerFunc(func(ctx context.Context, routingKey string, body []byte) {
		m.BusEvent(eventKind(routingKey))
		storageBridge.HandleBusEvent(ctx, routingKey, body)
	}), logger)
	consumer.OnReconnect = m.BusReconnect

	// Initialize token verifiers
	bearerVerifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger)
	deviceVerifier := auth.NewDeviceVerifier(deviceRepo, logger)

	// Initialize the WebSocket edge
	edgeServer := edge.New(roster, storageBridge, edge.Options{
		OutboundQueueMax: cfg.Room.OutboundQueueMax,
		AllowedOrigins:   cfg.Auth.AllowedOrigins,
	}, m, logger)

	// Initialize API router
	router := api.NewRouter(
		roster,
		storageBridge,
		edgeServer,
		bearerVerifier,
		deviceVerifier,
		rateLimiter,
		m,
		cfg,
		logger,
	)

	// Start background loops
	go roster.Run(ctx)
	go consumer.Run(ctx)

	// Create HTTP server. The WebSocket endpoint shares the listener; upgraded
	// connections are hijacked so the server timeouts do not apply to them.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}

	// Close room sockets so clients reconnect elsewhere promptly.
	for _, info := range roster.ListRooms() {
		roster.RemoveRoom(info.ID)
	}

	logger.Info("Server shutdown complete")
}

// eventKind maps a routing key onto its metrics label.
func eventKind(routingKey string) string {
	switch {
	case strings.HasPrefix(routingKey, "songs."):
		return "songs"
	case routingKey == "playlists":
		return "playlists"
	default:
		return "other"
	}
}
