// Package main is the entry point for the YieldSnap server, the API behind
// the yield dashboard: live pool data with projections, a locally persisted
// simulated portfolio, and animated day-by-day growth simulation.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/api"
	"github.com/arthur-zhuk/yieldsnap/internal/circuitbreaker"
	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/deposit"
	"github.com/arthur-zhuk/yieldsnap/internal/fetch"
	"github.com/arthur-zhuk/yieldsnap/internal/history"
	"github.com/arthur-zhuk/yieldsnap/internal/market"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/otel"
	"github.com/arthur-zhuk/yieldsnap/internal/portfolio"
	"github.com/arthur-zhuk/yieldsnap/internal/validation"
)

// main is the entry point for the application
func main() {
	// Configure logging
	setupLogging()

	// Load configuration
	cfg := config.Load()

	// Set up tracing if an OTLP endpoint is configured
	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	// Create circuit breaker if enabled
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.EnableCircuitBreaker {
		breaker = circuitbreaker.New(circuitbreaker.Thresholds{
			MaxAPY:       cfg.MaxAPY,
			MaxTVLChange: cfg.MaxTVLChange,
			MinProviders: cfg.MinProviderCount,
		}).
			WithResetDelay(cfg.CircuitResetDelay).
			WithTripCallback(func(reason string, ops []model.YieldOpportunity) {
				logrus.WithFields(logrus.Fields{
					"reason": reason,
					"pools":  len(ops),
				}).Warn("Market data rejected")
			})
	}

	// Provider registry with the merged snapshot cache
	registry := fetch.NewRegistry(cfg)

	validationOpts := validation.DefaultValidationOptions()
	validationOpts.MaxAPY = cfg.MaxAPY

	mkt := market.New(registry, breaker, validationOpts, cfg.EnableValidation)

	// Local investment store
	store, err := portfolio.Open(cfg.StorePath, cfg.StoreLockPath)
	if err != nil {
		logrus.Fatalf("Error opening portfolio store: %v", err)
	}
	pf := portfolio.NewService(store)

	deposits, err := deposit.NewService()
	if err != nil {
		logrus.Fatalf("Error initializing deposit service: %v", err)
	}

	// Background portfolio history sampling
	recorder := history.NewRecorder(history.Config{
		Interval:      cfg.HistoryInterval,
		MaxPoints:     cfg.HistoryMaxPoints,
		WebhookURL:    cfg.WebhookURL,
		WebhookAPIKey: cfg.WebhookAPIKey,
		BatchSize:     cfg.WebhookBatchSize,
	}, func(ctx context.Context) (model.PortfolioSummary, error) {
		return pf.Summary()
	})
	recorder.Start()

	handler := api.New(cfg, mkt, pf, deposits, recorder, registry.ProviderNames())
	registry.WithErrorCallback(handler.ProviderErrorHook())

	logrus.WithFields(logrus.Fields{
		"port":            cfg.Port,
		"mock_mode":       cfg.MockMode,
		"circuit_breaker": cfg.EnableCircuitBreaker,
		"validation":      cfg.EnableValidation,
		"metrics":         cfg.EnableMetrics,
		"providers":       registry.ProviderNames(),
	}).Info("Server initialized")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	// Flush the history recorder and release the store lock
	recorder.Stop()
	if err := store.Close(); err != nil {
		logrus.Warnf("Error closing portfolio store: %v", err)
	}

	logrus.Info("Server stopped")
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	// Set log formatter based on environment
	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set log level based on environment
	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}
