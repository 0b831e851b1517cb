package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ashare_backend/cache"
	"ashare_backend/config"
	"ashare_backend/models"
	"ashare_backend/routes"
	"ashare_backend/scheduler"
	"ashare_backend/services/datafetcher"
	"ashare_backend/services/datasync"
	"ashare_backend/services/mongomirror"
	"ashare_backend/services/realtime"
	"ashare_backend/services/vendor"
)

func main() {
	log.Println("==============================================")
	log.Println("  A-share Market Data API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cache store
	store, err := cache.NewStore(cfg.CachePath)
	if err != nil {
		log.Fatalf("Cache store init failed: %v", err)
	}
	if err := models.MigrateAdminModels(store.DB()); err != nil {
		log.Fatalf("Account migration failed: %v", err)
	}
	if err := models.SeedDefaultAdminUser(store.DB(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Printf("Warning: Could not seed operator account: %v", err)
	}

	// Vendor session and fetcher. A bad credential is fatal: nothing in
	// this service works without vendor data.
	gateway := vendor.NewGatewayClient(vendor.GatewayConfig{
		BaseURL: cfg.VendorBaseURL,
		Token:   cfg.VendorToken,
		Timeout: cfg.VendorTimeout,
		Rate:    cfg.VendorRate,
	})
	session := vendor.NewSessionManager(gateway)

	opts := []datafetcher.Option{
		datafetcher.WithRetryPolicy(datafetcher.RetryPolicy{
			Attempts:    cfg.FetchRetryTimes,
			BackoffBase: cfg.FetchBackoffBase,
		}),
	}
	if cfg.SnapshotURL != "" {
		opts = append(opts, datafetcher.WithSnapshot(vendor.NewSnapshotClient(cfg.SnapshotURL, cfg.VendorTimeout)))
	}
	fetcher, err := datafetcher.NewDataFetcher(store, session, gateway, opts...)
	if err != nil {
		log.Fatalf("Data fetcher init failed: %v", err)
	}

	// Optional Mongo mirror
	var mirror datasync.Mirror
	mongoMirror, err := mongomirror.NewMirror(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Printf("Warning: Mongo mirror unavailable: %v", err)
	} else if mongoMirror != nil {
		mirror = mongoMirror
		defer mongoMirror.Close()
	}

	// Quote stream hub
	hub := realtime.NewHub()

	// Sync service and scheduler
	syncService := datasync.NewService(fetcher, datasync.Config{
		RetryTimes:    cfg.SyncRetryTimes,
		RetryInterval: cfg.SyncRetryInterval,
		BatchSize:     cfg.BatchSize,
		BatchCooldown: cfg.BatchCooldown,
	}, mirror, hub)

	sched := scheduler.NewScheduler(syncService, scheduler.Config{
		StockListInterval:  cfg.StockListInterval,
		MarketDataInterval: cfg.MarketDataInterval,
		IndexDataInterval:  cfg.IndexDataInterval,
		Tick:               time.Minute,
		ShutdownWait:       30 * time.Second,
	})
	if cfg.SchedulerAutoStart {
		sched.Start()
	}

	// Nightly retention cleanup
	janitor := scheduler.NewJanitor(store, scheduler.RetentionPolicy{
		SpotDays:       cfg.SpotRetentionDays,
		IndexDays:      cfg.IndexRetentionDays,
		HistoricalDays: cfg.HistoricalRetentionDays,
	})
	janitor.Start()

	// HTTP surface
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())
	setupHealthEndpoints(router)
	routes.SetupRoutes(router, store.DB(), fetcher, sched, hub)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, sched, janitor, hub)
}

// setupHealthEndpoints registers liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "A-share Market Data API",
			"version": "1.0.0",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs failed or slow requests, skipping probe noise
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown stops background work, then drains the HTTP server
func gracefulShutdown(server *http.Server, sched *scheduler.Scheduler, janitor *scheduler.Janitor, hub *realtime.Hub) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	janitor.Stop()
	sched.Stop()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server shutdown completed")
}
