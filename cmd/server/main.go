// Package main is the entry point for the analysis engine HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablelens/internal/analysis"
	"tablelens/internal/api"
	"tablelens/internal/config"
	"tablelens/internal/db"
	"tablelens/internal/db/repository"
	"tablelens/internal/domain"
	"tablelens/internal/platform"
	"tablelens/internal/provider"
	"tablelens/internal/quality"
	"tablelens/internal/resilience"
	"tablelens/internal/workflow"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Control-plane store: single-connection write pool plus a read pool.
	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return err
	}
	defer writeDB.Close()
	defer readDB.Close()

	if err := db.RunMigrations(writeDB); err != nil {
		return err
	}

	jobRepo := repository.NewJobRepo(writeDB, readDB)
	cacheRepo := repository.NewCacheRepo(writeDB, readDB)

	// Fault-tolerance layer shared by every provider call.
	circuits := resilience.NewCircuitRegistry(0, 0)
	errorLog := resilience.NewErrorLog()
	executor := resilience.NewExecutor(resilience.RetryConfig{}, circuits, errorLog, cacheRepo, logger)

	gemini := provider.NewGeminiClient(cfg.GeminiAPIURL, cfg.GeminiAPIKey, 0, logger)
	analyzer := analysis.NewAnalyzer(gemini, executor, cacheRepo, cfg.GeminiModel, logger)
	batch := analysis.NewBatchOrchestrator(analyzer, analysis.BatchConfig{}, logger)

	gateway := platform.NewGatewayClient(cfg.GatewayURL, cfg.GatewayAPIKey, 0, logger)
	gate := quality.NewGate(logger)
	orch := workflow.NewOrchestrator(gateway, analyzer, batch, gate, logger)
	jobs := workflow.NewService(orch, batch, jobRepo, logger)

	handler := api.NewHandler(analyzer, jobs, executor, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// Optional scheduled workflow runs.
	if cfg.WorkflowCron != "" {
		scheduler := workflow.NewScheduler(jobs, scheduledConfig(cfg), cfg.WorkflowCron, logger)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// scheduledConfig builds the workflow config for cron-triggered runs from
// the YAML workflow defaults.
func scheduledConfig(cfg *config.Config) workflow.Config {
	categories := make([]domain.Category, 0, len(cfg.Workflow.Categories))
	for _, c := range cfg.Workflow.Categories {
		categories = append(categories, domain.Category(c))
	}
	autoUpdate := cfg.Workflow.MetadataSourceID != "" && cfg.Workflow.MetadataTableID != ""
	if cfg.Workflow.AutoUpdate != nil {
		autoUpdate = *cfg.Workflow.AutoUpdate
	}
	return workflow.Config{
		MetadataSourceID: cfg.Workflow.MetadataSourceID,
		MetadataTableID:  cfg.Workflow.MetadataTableID,
		TargetSourceIDs:  cfg.Workflow.TargetSourceIDs,
		BatchSize:        cfg.Workflow.BatchSize,
		MaxConcurrent:    cfg.Workflow.MaxConcurrent,
		Categories:       categories,
		AutoUpdate:       autoUpdate,
		QualityThreshold: cfg.Workflow.QualityThreshold,
	}
}
