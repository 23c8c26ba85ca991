package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eonurk/finance-bro/config"
	"github.com/eonurk/finance-bro/controllers"
	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/routes"
	"github.com/eonurk/finance-bro/services/provider"
	"github.com/eonurk/finance-bro/services/recorder"
	"github.com/eonurk/finance-bro/services/scanner"
	"github.com/eonurk/finance-bro/services/stream"
)

// scannerReady tracks whether the scan scheduler has been initialized, so
// the /ready endpoint can report readiness from any goroutine.
var scannerReady bool
var readyMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  Finance Bro API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up while the scanner initializes in background
	setupHealthEndpoints(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize services and setup routes in background
	var (
		jobScanner *scanner.Scanner
		feedHub    *stream.Hub
		archive    *recorder.Recorder
	)
	initDone := make(chan struct{})
	go func() {
		defer close(initDone)

		providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout)

		// The recorder is reporting-only; run without it if it fails
		archive, err = recorder.Open(cfg.RecorderPath)
		if err != nil {
			log.Printf("Warning: Recorder unavailable, scans will not be archived: %v", err)
			archive = nil
		}

		feedHub = stream.NewHub()

		scanCfg, err := buildScanConfig(cfg)
		if err != nil {
			log.Printf("ERROR: Invalid scan configuration: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		var archiver scanner.Archiver
		if archive != nil {
			archiver = archive
		}
		jobScanner, err = scanner.New(providerClient, scanCfg, feedHub, archiver)
		if err != nil {
			log.Printf("ERROR: Scanner initialization failed: %v", err)
			return
		}

		// Setup all API routes
		analysisController := controllers.NewAnalysisController(providerClient)
		scannerController := controllers.NewScannerController(jobScanner, feedHub)
		routes.SetupRoutes(router, analysisController, scannerController)

		// Start background scan scheduler
		if err := jobScanner.Start(); err != nil {
			log.Printf("ERROR: Scanner start failed: %v", err)
			return
		}

		readyMutex.Lock()
		scannerReady = true
		readyMutex.Unlock()

		log.Println("Application fully initialized")
	}()

	// Graceful shutdown
	gracefulShutdown(server, initDone, func() (*scanner.Scanner, *stream.Hub, *recorder.Recorder) {
		return jobScanner, feedHub, archive
	})
}

// buildScanConfig converts the env config into validated scan parameters
func buildScanConfig(cfg *config.Config) (scanner.Config, error) {
	period, err := models.ParsePeriod(cfg.ScanPeriod)
	if err != nil {
		return scanner.Config{}, err
	}

	inds := make([]models.Indicator, 0, len(cfg.ScanIndicators))
	for _, raw := range cfg.ScanIndicators {
		ind, err := models.ParseIndicator(raw)
		if err != nil {
			return scanner.Config{}, err
		}
		inds = append(inds, ind)
	}

	return scanner.Config{
		Symbols:    cfg.ScanSymbols,
		Period:     period,
		Indicators: inds,
		Interval:   cfg.ScanInterval,
		Staleness:  cfg.ScanStaleness,
	}, nil
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Finance Bro API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if the scanner is up
	router.GET("/ready", func(c *gin.Context) {
		readyMutex.RLock()
		isReady := scannerReady
		readyMutex.RUnlock()

		if !isReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Scanner not initialized",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe - can be used for initial health check
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
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

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, initDone <-chan struct{}, services func() (*scanner.Scanner, *stream.Hub, *recorder.Recorder)) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Make sure background init is not mid-flight before reading handles
	<-initDone
	jobScanner, feedHub, archive := services()

	// Stop the scan scheduler first; in-flight cycle results are discarded
	if jobScanner != nil {
		jobScanner.Stop()
	}
	if feedHub != nil {
		feedHub.Shutdown()
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close the scan archive
	if archive != nil {
		if err := archive.Close(); err == nil {
			log.Println("Recorder closed")
		}
	}

	log.Println("Server shutdown completed")
}
