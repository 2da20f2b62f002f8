package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paycat.dev/gateway/internal/api"
	"paycat.dev/gateway/internal/config"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/webhook"
	"paycat.dev/gateway/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r)

	// Start the retry runner in the background: it periodically re-drives
	// webhook deliveries past their next_retry_at independent of request
	// traffic.
	retryCtx, stopRetry := context.WithCancel(context.Background())
	if config.AppConfig.RetryRunnerInterval > 0 {
		runner := webhook.NewRetryRunner(time.Duration(config.AppConfig.RetryRunnerInterval)*time.Second, config.AppConfig.RetryRunnerBatch)
		go runner.Run(retryCtx)
		logging.Infof("Retry runner started, sweeping every %ds", config.AppConfig.RetryRunnerInterval)
	}

	server := &http.Server{
		Addr:         ":" + config.AppConfig.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Infof("Starting server on port %s", config.AppConfig.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")
	stopRetry()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}
	if err := database.CloseDatabase(); err != nil {
		logging.Errorf("Failed to close database cleanly: %v", err)
	}
	logging.Infof("Server stopped")
}
