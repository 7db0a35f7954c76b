package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"portraitgen/internal/adapter/repo"
	"portraitgen/internal/domain"
	"portraitgen/internal/generation"
	"portraitgen/internal/http/handlers"
	"portraitgen/internal/http/httpapi"
	"portraitgen/internal/infra"
	"portraitgen/internal/providers/genai"
	"portraitgen/internal/storage"
)

type ledger struct {
	candidates domain.CandidateRepository
	runs       domain.RunRepository
	prompts    domain.PromptSource
	db         handlers.Pinger
	close      func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.LedgerDriver).Msg("api: ledger unavailable")
	}
	defer store.close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}
	if client.Synthetic() {
		logger.Warn().Str("model", client.Model()).Msg("api: GEMINI_API_KEY missing, generating synthetic portraits")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := generation.NewMetrics(registry)

	retry := generation.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.BaseDelay = cfg.RetryBaseDelay

	orchestrator := generation.NewOrchestrator(generation.Options{
		Prompts:        store.prompts,
		Generator:      client,
		Store:          fileStore,
		Ledger:         store.candidates,
		Runs:           store.runs,
		Retry:          retry,
		InterCallDelay: cfg.InterCallDelay,
		Logger:         &logger,
		Metrics:        metrics,
	})
	dispatcher := generation.NewDispatcher(orchestrator, store.runs, &logger, metrics)

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Ledger:    store.candidates,
		Runs:      store.runs,
		Prompts:   store.prompts,
		Generator: dispatcher,
		DB:        store.db,
		Gatherer:  registry,
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))
	// Dispatched runs are not tied to requests; give them the rest of the window.
	server.OnShutdown(dispatcher.Wait)

	logger.Info().Str("port", cfg.Port).Str("ledger", cfg.LedgerDriver).Msg("api: listening")
	if err := server.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("api: stopped with errors")
		return
	}
	logger.Info().Msg("api: stopped")
}

func openLedger(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*ledger, error) {
	if cfg.LedgerDriver == infra.LedgerDriverMemory {
		mem := repo.NewMemoryLedger()
		logger.Warn().Msg("api: using in-memory ledger, candidates are lost on restart")
		return &ledger{
			candidates: mem,
			runs:       mem,
			prompts:    repo.StaticPromptSource{Prompt: cfg.DefaultPrompt, TribeName: cfg.DefaultTribe},
			close:      func() {},
		}, nil
	}

	if cfg.MigrateOnStart {
		start := time.Now()
		if err := infra.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
		logger.Info().Dur("took", time.Since(start)).Msg("api: migrations applied")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &ledger{
		candidates: repo.NewCandidateRepository(runner),
		runs:       repo.NewRunRepository(runner),
		prompts:    repo.NewPromptSource(runner),
		db:         pool,
		close:      pool.Close,
	}, nil
}
