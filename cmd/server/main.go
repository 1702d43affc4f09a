// Package main is the entry point for the finn-trader rebalancing and
// valuation engine. It wires the storage layer, the module services and
// the HTTP API, then runs until interrupted.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finnhq/finn-trader/internal/clients/alpaca"
	"github.com/finnhq/finn-trader/internal/config"
	"github.com/finnhq/finn-trader/internal/database"
	"github.com/finnhq/finn-trader/internal/events"
	"github.com/finnhq/finn-trader/internal/modules/allocation"
	"github.com/finnhq/finn-trader/internal/modules/backtest"
	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/trading"
	"github.com/finnhq/finn-trader/internal/modules/universe"
	"github.com/finnhq/finn-trader/internal/modules/valuation"
	"github.com/finnhq/finn-trader/internal/scheduler"
	"github.com/finnhq/finn-trader/internal/server"
	"github.com/finnhq/finn-trader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting finn-trader")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	conn := db.Conn()
	for _, initSchema := range []func(*sql.DB) error{
		universe.InitSchema,
		portfolio.InitSchema,
		allocation.InitSchema,
		trading.InitSchema,
	} {
		if err := initSchema(conn); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize schema")
		}
	}

	// Repositories
	symbolRepo := universe.NewSymbolRepository(conn, log)
	priceRepo := universe.NewPriceRepository(conn, log)
	userRepo := portfolio.NewUserRepository(conn, log)
	portfolioRepo := portfolio.NewPortfolioRepository(conn, log)
	positionRepo := portfolio.NewPositionRepository(conn, log)
	statsRepo := portfolio.NewStatsRepository(conn, log)
	tradeRepo := trading.NewTradeRepository(conn, log)
	allocRepo := allocation.NewRepository(conn, log)

	// The synthetic cash instrument must exist before any planning runs
	if _, err := symbolRepo.EnsureMoneyMarket(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure money market symbol")
	}

	// External price source is optional; without credentials all prices
	// come from bulk imports
	var fetcher universe.BarFetcher
	if cfg.AlpacaAPIKeyID != "" && cfg.AlpacaAPISecretKey != "" {
		fetcher = alpaca.NewClient(cfg.AlpacaBaseURL, cfg.AlpacaAPIKeyID, cfg.AlpacaAPISecretKey, log)
		log.Info().Msg("Alpaca price source configured")
	}
	priceService := universe.NewPriceService(symbolRepo, priceRepo, fetcher, log)

	// Services
	eventManager := events.NewManager(log)
	allocService := allocation.NewService(allocRepo, symbolRepo, log)
	planner := trading.NewPlanner(allocRepo, positionRepo, statsRepo, symbolRepo, priceRepo, log)
	executor := trading.NewExecutor(conn, tradeRepo, positionRepo, log)
	calculator := valuation.NewCalculator(statsRepo, tradeRepo, symbolRepo, priceRepo, valuation.CalculatorConfig{
		MetricsLookbackDays:  cfg.MetricsLookbackDays,
		TurnoverLookbackDays: cfg.TurnoverLookbackDays,
		RiskFreeRate:         cfg.RiskFreeRate,
		BenchmarkSymbol:      cfg.BenchmarkSymbol,
	}, log)
	replayer := valuation.NewReplayer(positionRepo, statsRepo, priceRepo, calculator, log)
	orchestrator := backtest.NewOrchestrator(conn, positionRepo, statsRepo, tradeRepo, allocRepo,
		symbolRepo, planner, executor, replayer,
		backtest.Config{Year: cfg.BacktestYear, SeedBalance: cfg.BacktestSeedBalance}, log)

	// Background jobs
	sched := scheduler.New(log)
	refreshJob := valuation.NewRefreshJob(portfolioRepo, replayer, log)
	if err := sched.AddJob("30 22 * * *", refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register valuation refresh job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:    log,
		DB:     db,
		Config: cfg,
		Modules: server.Modules{
			Universe:   universe.NewHandlers(symbolRepo, priceRepo, priceService, eventManager, log),
			Portfolio:  portfolio.NewHandlers(userRepo, portfolioRepo, positionRepo, statsRepo, log),
			Allocation: allocation.NewHandlers(allocService, eventManager, log),
			Trading:    trading.NewHandlers(planner, executor, tradeRepo, eventManager, log),
			Valuation:  valuation.NewHandlers(replayer, eventManager, log),
			Backtest:   backtest.NewHandlers(orchestrator, eventManager, log),
		},
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("Server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("finn-trader stopped")
}
