// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"amaqueme/analytics/database"
	"amaqueme/analytics/handlers"
	"amaqueme/analytics/middleware"
	"amaqueme/analytics/store"
	"amaqueme/analytics/tracker"
)

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("Invalid %s value %q, using default %d", key, os.Getenv(key), def)
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- PostgreSQL (dashboard users) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- ClickHouse (page view events + rollups) ---
	// The connection itself is dialed lazily on first use; bootstrap failure
	// is logged but not fatal. Page views drop and stats queries error until
	// the store comes back, but content serving is never held hostage to the
	// analytics store.
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Invalid ClickHouse configuration: %v", err)
	}
	defer chClient.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := chClient.InitSchema(initCtx); err != nil {
		log.Printf("WARNING: ClickHouse schema bootstrap failed (continuing): %v", err)
	}
	cancelInit()

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient)

	// --- Background event writer ---
	pageTracker := tracker.New(
		analyticsStore,
		envInt("TRACKER_QUEUE_SIZE", 1024),
		envInt("TRACKER_WORKERS", 4),
	)

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	analyticsHandlers := handlers.NewAnalyticsHandlers(analyticsStore)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())
	// Every qualifying page render on this router is classified and queued;
	// the trackability gate inside skips /api, /_ and asset paths.
	r.Use(middleware.TrackPageViews(pageTracker))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/analytics", analyticsHandlers.GetAnalytics)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Analytics server starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Drain queued page views before the store handles go away.
	pageTracker.Close(ctx)

	log.Println("Server exiting.")
}
