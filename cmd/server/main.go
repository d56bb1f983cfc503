package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chat-gateway/backend/api/handlers"
	"github.com/chat-gateway/backend/internal/config"
	"github.com/chat-gateway/backend/internal/db"
	"github.com/chat-gateway/backend/internal/driver"
	"github.com/chat-gateway/backend/internal/events"
	"github.com/chat-gateway/backend/internal/session"
	"github.com/chat-gateway/backend/internal/store"
	"github.com/chat-gateway/backend/internal/webhook"
	"github.com/chat-gateway/backend/internal/ws"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure the store directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatalf("Failed to create store directory: %v", err)
	}

	// Initialize database and session store
	database, err := db.InitDB(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	sessionStore := store.NewSessionStore(database)

	// Event fan-out: router with the configured filter, feeding the
	// webhook dispatcher and the WebSocket broadcaster
	router := events.NewRouter(cfg.Events.Suppressed)

	dispatcher := webhook.NewDispatcher(cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Timeout)
	defer dispatcher.Close()
	router.AddSink(dispatcher)

	broadcaster := ws.NewBroadcaster(cfg.Events.HistorySize)
	defer broadcaster.Close()
	router.AddSink(broadcaster)

	// Session registry over the automation driver seam
	factory := driver.NewEmulatedFactory(cfg.Sessions.ConnectDelay)
	registry := session.NewRegistry(sessionStore, factory, router, session.Config{
		ReadyTimeout:        cfg.Sessions.ReadyTimeout,
		ShutdownParallelism: cfg.Sessions.ShutdownParallelism,
	})

	// Recover persisted sessions in the background
	if cfg.Recovery.Enabled {
		coordinator := session.NewCoordinator(registry, sessionStore, cfg.Recovery.MaxConcurrent)
		go func() {
			if err := coordinator.Run(context.Background()); err != nil {
				log.Printf("Session recovery failed: %v", err)
			}
		}()
	}

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(registry, broadcaster)
	wsHandler := handlers.NewWebSocketHandler(registry, broadcaster)

	// Initialize Gin router
	r := gin.Default()
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "ok",
			"sessions": registry.Count(),
			"clients":  broadcaster.ClientCount(),
		})
	})

	// API routes
	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown: disconnect every live session in bounded
	// parallel, keeping persisted state
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
		broadcaster.Close()
		dispatcher.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
