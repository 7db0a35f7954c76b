package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"portraitgen/internal/adapter/repo"
	"portraitgen/internal/generation"
	"portraitgen/internal/infra"
)

// The worker fails run markers abandoned by an API process that exited
// mid-run. It only makes sense against the PostgreSQL ledger.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.LedgerDriver != infra.LedgerDriverPostgres {
		logger.Fatal().Str("driver", cfg.LedgerDriver).Msg("worker: sweeping requires the postgres ledger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runs := repo.NewRunRepository(infra.NewSQLRunner(pool, logger))
	sweeper := generation.NewSweeper(runs, generation.SweeperOptions{
		StaleAfter: cfg.StaleRunAfter,
		Interval:   cfg.SweepInterval,
		Logger:     &logger,
	})

	logger.Info().
		Dur("stale_after", cfg.StaleRunAfter).
		Dur("interval", cfg.SweepInterval).
		Msg("worker: sweeping stale generation runs")
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
