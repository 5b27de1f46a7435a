// Kestrel - Credit-card fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/blend"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if path := os.Getenv("KESTREL_DATASET"); path != "" {
		cfg.Dataset.CSVPath = path
	}
	if path := os.Getenv("KESTREL_MODEL"); path != "" {
		cfg.Model.ArtifactPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"dataset", cfg.Dataset.CSVPath,
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

	// Load the historical dataset. Missing data degrades the server:
	// scoring still works off a persisted model artifact, analytics and
	// retraining return 503 until a dataset is supplied.
	var (
		ds       *dataset.Dataset
		analyzer *analytics.Analyzer
	)
	ds, err = dataset.Load(cfg.Dataset.CSVPath)
	if err != nil {
		slog.Warn("historical dataset unavailable", "path", cfg.Dataset.CSVPath, "error", err)
		ds = nil
	} else {
		analyzer = analytics.NewAnalyzer(ds)
		slog.Info("dataset loaded",
			"records", ds.Len(),
			"fraud", ds.FraudCount(),
			"amount_mean", ds.AmountMean,
		)
	}

	// Feature derivation and the model lifecycle manager
	deriver := feature.NewDeriver(cfg.Scoring.ReferenceMean, cfg.Scoring.ReferenceStd)
	manager := model.NewManager(cfg.Model, ds, deriver)
	slog.Info("model manager initialized", "artifact", cfg.Model.ArtifactPath)

	// Initialize Rule Engine with the built-in rule table, then overlay
	// any rules persisted via the API.
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load built-in rules", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Score blender
	blender := blend.NewBlender(cfg.Scoring)
	slog.Info("blender initialized",
		"model_weight", cfg.Scoring.ModelWeight,
		"rule_weight", cfg.Scoring.RuleWeight,
	)

	// Alert worker: consumes completed assessments off the bus and fans
	// high-tier ones out to the alert topic. Persistence already happened
	// on the request path, so the worker runs without a repository.
	alertWorker := worker.NewWorker(busImpl, nil)
	if err := alertWorker.Start(); err != nil {
		slog.Error("failed to start alert worker", "error", err)
		os.Exit(1)
	}
	slog.Info("alert worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Engine:   engine,
		Manager:  manager,
		Blender:  blender,
		Deriver:  deriver,
		Analyzer: analyzer,
		Scoring:  cfg.Scoring,
		Version:  Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := alertWorker.Stop(); err != nil {
		slog.Error("failed to stop alert worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase overlays persisted rule configs onto the engine.
// Built-ins stay loaded; persisted rules with the same ID replace them.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Built-ins are enough to start; add more via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Fraud Risk Scoring Engine             ║")
	fmt.Println("  ║     Every transaction, weighed.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                  - Score a transaction")
	fmt.Println("    GET  /assessments/{id}       - Get assessment by ID")
	fmt.Println("    GET  /transactions/{id}      - Get transaction by ID")
	fmt.Println("    GET  /model                  - Model status and metrics")
	fmt.Println("    POST /model/train            - Retrain the model")
	fmt.Println("    GET  /rules                  - List all rules")
	fmt.Println("    POST /rules                  - Create a new rule")
	fmt.Println("    POST /rules/reload           - Hot-reload rules from database")
	fmt.Println("    GET  /analytics/summary      - Dataset summary")
	fmt.Println("    GET  /analytics/amounts      - Amount distribution")
	fmt.Println("    GET  /analytics/timeofday    - Hourly fraud pattern")
	fmt.Println("    GET  /analytics/distance     - Distance vs amount series")
	fmt.Println("    GET  /analytics/fraud-daily  - Daily fraud counts")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
