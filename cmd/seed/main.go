// Seed loads a card/benefit/badge catalog fixture into the database.
//
// Usage:
//   go run cmd/seed/main.go -catalog catalog.json [-db ./cardlens.db]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/cardlens/cardlens/internal/catalog"
	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/repository"
)

func main() {
	catalogPath := flag.String("catalog", "", "Path to catalog fixture JSON")
	dbPath := flag.String("db", "", "SQLite database path (defaults to the configured path)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *catalogPath == "" {
		slog.Error("missing required -catalog flag")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := domain.DefaultConfig()
	if os.Getenv("CARDLENS_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if *dbPath != "" {
		cfg.Repository.SQLitePath = *dbPath
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	fixture, err := catalog.Load(*catalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "path", *catalogPath, "error", err)
		os.Exit(1)
	}

	if err := fixture.Seed(context.Background(), repo); err != nil {
		slog.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}

	slog.Info("catalog seeded",
		"cards", len(fixture.Cards),
		"benefits", len(fixture.Benefits),
		"badges", len(fixture.Badges),
	)
}
