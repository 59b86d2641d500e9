// Cardlens - Card benefit recommendations for every payment.
// Copyright (c) 2025 cardlens
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardlens/cardlens/internal/api"
	"github.com/cardlens/cardlens/internal/badges"
	"github.com/cardlens/cardlens/internal/bus"
	"github.com/cardlens/cardlens/internal/cache"
	"github.com/cardlens/cardlens/internal/catalog"
	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/places"
	"github.com/cardlens/cardlens/internal/recommend"
	"github.com/cardlens/cardlens/internal/repository"
	"github.com/cardlens/cardlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("CARDLENS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting cardlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("CARDLENS_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if path := os.Getenv("CARDLENS_DB_PATH"); path != "" {
		cfg.Repository.SQLitePath = path
	}
	if key := os.Getenv("CARDLENS_KAKAO_API_KEY"); key != "" {
		cfg.Places.APIKey = key
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Seed the benefit catalog when a fixture is configured
	if path := os.Getenv("CARDLENS_CATALOG"); path != "" {
		if err := seedCatalog(ctx, repo, path); err != nil {
			slog.Error("failed to seed catalog", "path", path, "error", err)
			os.Exit(1)
		}
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Classifier with issuer exclusion rules
	exclusions, err := loadExclusions()
	if err != nil {
		slog.Error("failed to load exclusion rules", "error", err)
		os.Exit(1)
	}
	classifier, err := performance.NewClassifier(exclusions)
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier initialized", "exclusion_count", classifier.ExclusionCount())

	// Initialize Performance Tracker
	tracker := performance.NewTracker(repo)

	// Initialize Badge Service
	badgeSvc := badges.NewService(repo, cfg.Badges)

	// Initialize Places client (only when an API key is configured)
	var placesClient domain.PlacesClient
	if cfg.Places.APIKey != "" {
		placesClient = places.NewCached(places.NewClient(cfg.Places), cacheImpl, cfg.Places.CacheTTL)
		slog.Info("places client initialized", "base_url", cfg.Places.BaseURL)
	} else {
		slog.Info("places client disabled, no API key configured")
	}

	// Initialize Recommendation Service
	recommender := recommend.NewService(repo, tracker, placesClient, cfg.Recommend, cfg.Places.RadiusMeters)

	// Initialize Ingestion Pipeline
	pipeline := worker.NewPipeline(repo, classifier, tracker, badgeSvc, busImpl)

	// Initialize async Worker (Pro tier)
	async := cfg.Tier == domain.TierPro || os.Getenv("CARDLENS_ASYNC_WORKER") == "true"
	var asyncWorker *worker.Worker
	if async {
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
		slog.Info("async worker started")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, pipeline, recommender, tracker, badgeSvc, placesClient, Version, async)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("cardlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("cardlens shutdown complete")
}

// seedCatalog loads a card/benefit/badge fixture and upserts it.
// Seeding is idempotent so restarts with the same fixture are safe.
func seedCatalog(ctx context.Context, repo domain.Repository, path string) error {
	fixture, err := catalog.Load(path)
	if err != nil {
		return err
	}
	return fixture.Seed(ctx, repo)
}

// loadExclusions reads issuer exclusion rules from the file named by
// CARDLENS_EXCLUSIONS. No file means no exclusions.
func loadExclusions() ([]performance.ExclusionRule, error) {
	path := os.Getenv("CARDLENS_EXCLUSIONS")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []performance.ExclusionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	slog.Info("loaded exclusion rules", "path", path, "count", len(rules))
	return rules, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               💳 CARDLENS                 ║")
	fmt.Println("  ║      Card Benefit Recommendations         ║")
	fmt.Println("  ║      The right card, every payment.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /recommend                - Recommend cards for a payment")
	fmt.Println("    GET  /recommendations/current  - Recommend for current location")
	fmt.Println("    GET  /performance              - Spend tier and benefit usage")
	fmt.Println("    POST /transactions             - Ingest a transaction")
	fmt.Println("    GET  /transactions/{id}        - Get transaction by ID")
	fmt.Println("    GET  /cards                    - List the card catalog")
	fmt.Println("    GET  /cards/{id}/benefits      - List a card's benefits")
	fmt.Println("    GET  /users/{id}/cards         - List a user's cards")
	fmt.Println("    GET  /users/{id}/missed-benefits - Missed benefit report")
	fmt.Println("    GET  /users/{id}/badges        - List a user's badges")
	fmt.Println("    GET  /places/nearby            - Nearby merchant search")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
