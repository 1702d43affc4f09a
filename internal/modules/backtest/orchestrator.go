package backtest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finnhq/finn-trader/internal/modules/allocation"
	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/trading"
	"github.com/finnhq/finn-trader/internal/modules/universe"
	"github.com/finnhq/finn-trader/internal/modules/valuation"
)

// Config carries the backtest's fixed frame
type Config struct {
	Year        int
	SeedBalance float64
}

// MonthResult reports one month of the backtest
type MonthResult struct {
	Month   int                      `json:"month"`
	Status  string                   `json:"status"`
	Message string                   `json:"message"`
	Replay  *valuation.ReplaySummary `json:"replay,omitempty"`
	Trades  int                      `json:"trades"`
}

// Orchestrator drives replay and rebalance month by month. Seeding is a
// destructive reset of the portfolio's ledger, stats and trades so runs
// are reproducible; the sequence halts at the first failing month and the
// results committed so far stay committed.
type Orchestrator struct {
	db          *sql.DB
	positions   *portfolio.PositionRepository
	stats       *portfolio.StatsRepository
	trades      *trading.TradeRepository
	allocations *allocation.Repository
	symbols     *universe.SymbolRepository
	planner     *trading.Planner
	executor    *trading.Executor
	replayer    *valuation.Replayer
	cfg         Config
	log         zerolog.Logger
}

// NewOrchestrator creates a new backtest orchestrator
func NewOrchestrator(
	db *sql.DB,
	positions *portfolio.PositionRepository,
	stats *portfolio.StatsRepository,
	trades *trading.TradeRepository,
	allocations *allocation.Repository,
	symbols *universe.SymbolRepository,
	planner *trading.Planner,
	executor *trading.Executor,
	replayer *valuation.Replayer,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		db:          db,
		positions:   positions,
		stats:       stats,
		trades:      trades,
		allocations: allocations,
		symbols:     symbols,
		planner:     planner,
		executor:    executor,
		replayer:    replayer,
		cfg:         cfg,
		log:         log.With().Str("service", "backtest").Logger(),
	}
}

// Seed clears the portfolio's positions, stats and trades, then plants the
// starting money-market position and a zero-metric stat at January 1 of
// the backtest year
func (o *Orchestrator) Seed(portfolioID uuid.UUID) error {
	cash, err := o.symbols.EnsureMoneyMarket()
	if err != nil {
		return err
	}

	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := o.positions.DeleteForPortfolioTx(tx, portfolioID); err != nil {
		return err
	}
	if err := o.stats.DeleteForPortfolioTx(tx, portfolioID); err != nil {
		return err
	}
	if err := o.trades.DeleteForPortfolioTx(tx, portfolioID); err != nil {
		return err
	}

	janFirst := time.Date(o.cfg.Year, time.January, 1, 0, 0, 0, 0, time.UTC)

	err = o.positions.InsertTx(tx, portfolio.PositionSnapshot{
		PositionID:  uuid.New(),
		PortfolioID: portfolioID,
		SymbolID:    cash.SymbolID,
		Quantity:    decimal.NewFromFloat(o.cfg.SeedBalance),
		RecordedAt:  janFirst,
	})
	if err != nil {
		return err
	}

	err = o.stats.InsertTx(tx, portfolio.PortfolioStat{
		StatID:           uuid.New(),
		PortfolioID:      portfolioID,
		RecordedAt:       janFirst,
		PortfolioBalance: o.cfg.SeedBalance,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit backtest seed: %w", err)
	}

	o.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Float64("seed_balance", o.cfg.SeedBalance).
		Int("year", o.cfg.Year).
		Msg("Backtest seeded")

	return nil
}

// Run seeds the portfolio and processes each allocation date in order:
// replay the month, then plan and execute that month's batch. Stops at the
// first error and returns everything computed so far.
func (o *Orchestrator) Run(portfolioID uuid.UUID, allocationDates []string, startMonth int) []MonthResult {
	var results []MonthResult

	if err := o.Seed(portfolioID); err != nil {
		o.log.Error().Err(err).Msg("Failed to seed backtest")
		return append(results, MonthResult{
			Month:   0,
			Status:  "error",
			Message: fmt.Sprintf("failed to initialize portfolio: %s", err),
		})
	}

	for _, dateStr := range allocationDates {
		date, err := time.Parse(universe.DateFormat, dateStr)
		if err != nil {
			results = append(results, MonthResult{
				Month:   0,
				Status:  "error",
				Message: fmt.Sprintf("invalid allocation date %q", dateStr),
			})
			break
		}

		month := int(date.Month())
		if month < startMonth {
			continue
		}

		result := o.runMonth(portfolioID, date)
		results = append(results, result)
		if result.Status == "error" {
			o.log.Error().Int("month", month).Str("message", result.Message).Msg("Backtest halted")
			break
		}

		o.log.Info().Int("month", month).Msg("Backtest month completed")
	}

	return results
}

func (o *Orchestrator) runMonth(portfolioID uuid.UUID, date time.Time) MonthResult {
	month := int(date.Month())

	summary, err := o.replayer.ReplayMonth(portfolioID, date.Year(), date.Month())
	if err != nil {
		return MonthResult{
			Month:   month,
			Status:  "error",
			Message: fmt.Sprintf("failed to replay month %d: %s", month, err),
		}
	}

	monthStart := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Second)
	batchID, err := o.allocations.FindBatchInWindow(portfolioID, monthStart, monthEnd)
	if err != nil {
		return MonthResult{Month: month, Status: "error", Message: err.Error(), Replay: summary}
	}
	if batchID == uuid.Nil {
		return MonthResult{
			Month:   month,
			Status:  "error",
			Message: fmt.Sprintf("no allocation batch found for %s", date.Format(universe.DateFormat)),
			Replay:  summary,
		}
	}

	plan, err := o.planner.Plan(batchID)
	if err != nil {
		return MonthResult{
			Month:   month,
			Status:  "error",
			Message: fmt.Sprintf("failed to plan trades for month %d: %s", month, err),
			Replay:  summary,
		}
	}

	executed, err := o.executor.Execute(plan.Intents, plan.TradeDate)
	if err != nil {
		return MonthResult{
			Month:   month,
			Status:  "error",
			Message: fmt.Sprintf("failed to execute trades for month %d: %s", month, err),
			Replay:  summary,
		}
	}

	return MonthResult{
		Month:   month,
		Status:  "success",
		Message: fmt.Sprintf("processed month %d", month),
		Replay:  summary,
		Trades:  len(executed),
	}
}
