package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/chatbot-proxy/cmd/mainconfig"
	"github.com/wolfman30/chatbot-proxy/internal/api/router"
	"github.com/wolfman30/chatbot-proxy/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/http/handlers"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

func main() {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chatbot proxy",
		"app", cfg.AppName,
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"session_store", cfg.SessionStore,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWS(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to prepare AWS configuration", "error", err)
		os.Exit(1)
	}

	store, err := bootstrap.BuildSessionStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	metricsHandler, registry := setupMetrics()
	b, err := bootstrap.BuildBridge(ctx, cfg, store, registry, logger)
	if err != nil {
		logger.Error("bridge startup failed", "error", err)
		store.Close()
		os.Exit(1)
	}

	routerCfg := &router.Config{
		Logger:       logger,
		CCaaSWebhook: handlers.NewCCaaSWebhookHandler(cfg.AppName, b.Controller, logger),

		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
	}
	if cfg.MetricsEnabled {
		routerCfg.MetricsHandler = metricsHandler
	}
	r := router.New(routerCfg)

	// Let bot ids and stores settle before accepting webhooks.
	time.Sleep(cfg.StartupDelay)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := b.Controller.Wait(shutdownCtx); err != nil {
		logger.Warn("in-flight conversations did not finish", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}
