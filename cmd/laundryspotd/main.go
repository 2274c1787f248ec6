package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"laundryspot-backend/config"
	"laundryspot-backend/internal/api"
	"laundryspot-backend/internal/db"
	"laundryspot-backend/internal/lifecycle"
	"laundryspot-backend/internal/notification"
	"laundryspot-backend/internal/payment"
	"laundryspot-backend/internal/settlement"
	"laundryspot-backend/internal/store"
	"laundryspot-backend/internal/washer"
)

func main() {
	logger := log.New(os.Stdout, "laundryspot ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded from %s", configPath)

	if cfg.Stripe.SecretKey == "" {
		logger.Fatalf("stripe.secret_key must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	gateway := payment.NewStripeGateway(cfg.Stripe)
	registry := washer.NewRegistry(appStore, gateway)
	engine := lifecycle.NewEngine(appStore, registry, lifecycle.FlatRate{Cents: cfg.Pricing.FlatRateCents})
	coordinator := payment.NewCoordinator(appStore, gateway)

	// Settlement reconciliation runs for the life of the process: an
	// unresolved settlement is money moved without a record.
	reconciler := settlement.NewReconciler(appStore, cfg.Settlement.Interval)
	go reconciler.Run(ctx)

	var announcer api.Announcer
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are not configured")
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		})
		pool.Start(ctx)
		announcer = pool
		logger.Printf("notification worker pool started (size %d)", cfg.WorkerPool.Size)
	}

	handler := api.NewHandler(engine, coordinator, registry, appStore, announcer, cfg.Push.PublicKey)
	router := api.NewRouter(handler, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("server gracefully stopped")
}
