// FraudGuard - Motor claim fraud triage in 60 seconds.
// Copyright (c) 2026 fraudguard.ai
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/api"
	"github.com/fraudguard-ai/fraudguard/internal/audit"
	"github.com/fraudguard-ai/fraudguard/internal/bus"
	"github.com/fraudguard-ai/fraudguard/internal/cache"
	"github.com/fraudguard-ai/fraudguard/internal/claims"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/extract"
	"github.com/fraudguard-ai/fraudguard/internal/history"
	"github.com/fraudguard-ai/fraudguard/internal/repository"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
	"github.com/fraudguard-ai/fraudguard/internal/scoring"
	"github.com/fraudguard-ai/fraudguard/internal/signals"
	"github.com/fraudguard-ai/fraudguard/internal/worker"
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
	if os.Getenv("FRAUDGUARD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting fraudguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FRAUDGUARD_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"read_only", cfg.Capabilities.ReadOnly(),
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

	// Initialize custom rule engine and load per-org rules from the
	// database (no hardcoded defaults - configure via POST /rules)
	custom, err := rules.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadCustomRules(ctx, repo, custom); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engines initialized",
		"builtin_count", len(rules.Builtin()),
		"custom_count", custom.Count(),
	)

	// Scoring engine over builtin + custom rules
	engine := scoring.NewEngine(custom)

	// Model-backed collaborators are optional; without an endpoint the
	// pipeline runs on the deterministic rules alone.
	var analyzer domain.SignalAnalyzer
	var extractor domain.DocumentExtractor
	if cfg.Analyzer.Endpoint != "" {
		analyzer = signals.NewAnalyzer(cfg.Analyzer)
		extractor = extract.NewExtractor(cfg.Analyzer)
		slog.Info("analyzer initialized", "model", cfg.Analyzer.Model)
	} else {
		slog.Info("no analyzer endpoint configured - AI signals disabled")
	}

	// Claim lifecycle service
	recorder := audit.NewRecorder(repo, busImpl)
	hist := history.NewService(repo)
	svc := claims.NewService(repo, cacheImpl, busImpl, recorder, engine, analyzer, extractor, hist, cfg.Capabilities)
	slog.Info("claims service initialized")

	// SIU alert worker (Pro tier)
	var alertWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("FRAUDGUARD_ALERT_WORKER") == "true" {
		alertWorker = worker.NewWorker(busImpl, repo)

		var orgIDs []string
		if envOrgs := os.Getenv("FRAUDGUARD_ORGS"); envOrgs != "" {
			for _, id := range strings.Split(envOrgs, ",") {
				if id = strings.TrimSpace(id); id != "" {
					orgIDs = append(orgIDs, id)
				}
			}
		}

		if err := alertWorker.Start(worker.Config{OrgIDs: orgIDs}); err != nil {
			slog.Error("failed to start alert worker", "error", err)
		} else {
			slog.Info("alert worker started", "org_count", len(orgIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, busImpl, custom, cfg.Capabilities, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop alert worker first
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			slog.Error("failed to stop alert worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudguard shutdown complete")
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("FRAUDGUARD_READONLY"); v == "true" {
		cfg.Capabilities = domain.Capabilities{}
	}
	if v := os.Getenv("FRAUDGUARD_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("FRAUDGUARD_PG_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("FRAUDGUARD_PG_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("FRAUDGUARD_PG_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("FRAUDGUARD_PG_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("FRAUDGUARD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("FRAUDGUARD_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("FRAUDGUARD_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}
	if v := os.Getenv("FRAUDGUARD_LLM_ENDPOINT"); v != "" {
		cfg.Analyzer.Endpoint = v
	}
	if v := os.Getenv("FRAUDGUARD_LLM_API_KEY"); v != "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("FRAUDGUARD_LLM_MODEL"); v != "" {
		cfg.Analyzer.Model = v
	}
}

// loadCustomRules loads every organization's enabled custom rules into
// the engine at startup. Later changes are applied via POST /rules/reload.
func loadCustomRules(ctx context.Context, repo domain.Repository, custom *rules.CustomEngine) error {
	orgs, err := repo.ListOrganizations(ctx)
	if err != nil {
		slog.Warn("failed to list organizations for rule load", "error", err)
		return nil // Start with builtin rules only
	}

	for _, org := range orgs {
		configs, err := repo.ListCustomRules(ctx, org.OrgID)
		if err != nil {
			slog.Warn("failed to list custom rules", "org_id", org.OrgID, "error", err)
			continue
		}
		for _, cfg := range configs {
			if err := custom.Load(cfg); err != nil {
				slog.Warn("skipping custom rule that no longer compiles",
					"org_id", org.OrgID,
					"rule_id", cfg.ID,
					"error", err,
				)
			}
		}
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║             🛡  FRAUDGUARD                 ║")
	fmt.Println("  ║      Motor Claim Fraud Triage Engine      ║")
	fmt.Println("  ║       Every claim, scored on arrival.     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /claims                   - Submit and score a claim")
	fmt.Println("    GET   /claims                   - List claims by risk")
	fmt.Println("    GET   /claims/{id}              - Get claim by reference")
	fmt.Println("    GET   /claims/{id}/audit        - Claim audit trail")
	fmt.Println("    POST  /claims/{id}/review       - Mark claim in review")
	fmt.Println("    POST  /claims/{id}/rescore      - Re-run scoring")
	fmt.Println("    POST  /claims/{id}/approve      - Approve claim")
	fmt.Println("    POST  /claims/{id}/reject       - Reject claim")
	fmt.Println("    POST  /claims/{id}/override     - Override fraud score")
	fmt.Println("    PATCH /claims/{id}              - Edit claim fields")
	fmt.Println("    POST  /claims/{id}/documents    - Upload a document")
	fmt.Println("    POST  /extract                  - Preview document extraction")
	fmt.Println("    GET   /stats                    - Portfolio statistics")
	fmt.Println("    GET   /rules                    - List scoring rules")
	fmt.Println("    POST  /rules                    - Create a custom rule")
	fmt.Println("    POST  /rules/reload             - Hot-reload custom rules")
	fmt.Println("    POST  /organizations            - Provision an organization")
	fmt.Println("    GET   /health                   - Health check")
	fmt.Println()
}
