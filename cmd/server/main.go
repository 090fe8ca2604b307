package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quantlab/riskcore/internal/config"
	"github.com/quantlab/riskcore/internal/marketdata"
	"github.com/quantlab/riskcore/internal/modules/analytics"
	analyticshandlers "github.com/quantlab/riskcore/internal/modules/analytics/handlers"
	"github.com/quantlab/riskcore/internal/modules/backtest"
	backtesthandlers "github.com/quantlab/riskcore/internal/modules/backtest/handlers"
	"github.com/quantlab/riskcore/internal/modules/features"
	"github.com/quantlab/riskcore/internal/modules/scoring"
	scoringhandlers "github.com/quantlab/riskcore/internal/modules/scoring/handlers"
	"github.com/quantlab/riskcore/internal/scheduler"
	"github.com/quantlab/riskcore/internal/server"
	"github.com/quantlab/riskcore/internal/workers"
	"github.com/quantlab/riskcore/pkg/logger"
)

func main() {
	// Load configuration first so the log level is configurable
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting riskcore")

	// Open the bar store
	store, err := marketdata.Open(filepath.Join(cfg.DataDir, "riskcore.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open bar store")
	}
	defer store.Close()

	pool := workers.NewPool(cfg.ScoringWorkers)

	// Scoring: weighted-sum composite by default, calibrated classifier when
	// an artifact is configured.
	var scorer scoring.Scorer
	weighted, err := scoring.NewWeightedSumScorer(cfg.RiskWeights)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid risk weights")
	}
	scorer = weighted
	if cfg.ClassifierPath != "" {
		model, err := scoring.LoadModel(cfg.ClassifierPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ClassifierPath).Msg("Failed to load classifier artifact")
		}
		scorer = scoring.NewClassifierScorer(model)
		log.Info().Str("path", cfg.ClassifierPath).Msg("Using classifier scorer")
	}

	featureEngine := features.NewEngine(log)
	scoringService, err := scoring.NewService(
		store, featureEngine, scorer, cfg.RiskThresholds,
		cfg.MarketSymbol, cfg.LookbackDays, pool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scoring service")
	}
	scoringService.SetSink(store)

	cache := analytics.NewCache(store, log)
	analyticsService := analytics.NewService(store, cache, pool, cfg.RiskFreeRate, log)

	backtestEngine := backtest.NewEngine(store, store, log)

	// Daily score refresh
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, "score-refresh", scoringService.Refresh); err != nil {
		log.Fatal().Err(err).Msg("Failed to register score refresh job")
	}
	sched.Start()
	defer sched.Stop()

	// Warm the score snapshot in the background so /api/scores serves soon
	// after startup.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := scoringService.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial score refresh failed")
		}
	}()

	srv := server.New(server.Config{
		Port:              cfg.Port,
		Log:               log,
		Config:            cfg,
		DevMode:           cfg.DevMode,
		ScoringHandlers:   scoringhandlers.NewHandler(scoringService, log),
		AnalyticsHandlers: analyticshandlers.NewHandler(analyticsService, cfg, log),
		BacktestHandlers:  backtesthandlers.NewHandler(backtestEngine, log),
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
