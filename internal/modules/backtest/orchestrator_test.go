package backtest

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnhq/finn-trader/internal/modules/allocation"
	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/trading"
	"github.com/finnhq/finn-trader/internal/modules/universe"
	"github.com/finnhq/finn-trader/internal/modules/valuation"

	_ "modernc.org/sqlite"
)

type fixture struct {
	db           *sql.DB
	symbols      *universe.SymbolRepository
	prices       *universe.PriceRepository
	positions    *portfolio.PositionRepository
	stats        *portfolio.StatsRepository
	trades       *trading.TradeRepository
	allocations  *allocation.Repository
	allocSvc     *allocation.Service
	orchestrator *Orchestrator
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	// A file-backed DB is required: with ":memory:" every pooled
	// connection gets its own empty database, and the executor reads
	// through the pool while holding a transaction.
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, universe.InitSchema(db))
	require.NoError(t, portfolio.InitSchema(db))
	require.NoError(t, allocation.InitSchema(db))
	require.NoError(t, trading.InitSchema(db))

	log := zerolog.Nop()
	f := &fixture{
		db:          db,
		symbols:     universe.NewSymbolRepository(db, log),
		prices:      universe.NewPriceRepository(db, log),
		positions:   portfolio.NewPositionRepository(db, log),
		stats:       portfolio.NewStatsRepository(db, log),
		trades:      trading.NewTradeRepository(db, log),
		allocations: allocation.NewRepository(db, log),
	}
	f.allocSvc = allocation.NewService(f.allocations, f.symbols, log)

	planner := trading.NewPlanner(f.allocations, f.positions, f.stats, f.symbols, f.prices, log)
	executor := trading.NewExecutor(db, f.trades, f.positions, log)
	calc := valuation.NewCalculator(f.stats, f.trades, f.symbols, f.prices, valuation.CalculatorConfig{
		MetricsLookbackDays:  90,
		TurnoverLookbackDays: 60,
		RiskFreeRate:         0,
		BenchmarkSymbol:      "SPY",
	}, log)
	replayer := valuation.NewReplayer(f.positions, f.stats, f.prices, calc, log)

	f.orchestrator = NewOrchestrator(db, f.positions, f.stats, f.trades, f.allocations,
		f.symbols, planner, executor, replayer,
		Config{Year: 2024, SeedBalance: 1000000}, log)
	return f
}

func (f *fixture) seedMarket(t *testing.T) uuid.UUID {
	t.Helper()
	sym, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), 100))
	return sym.SymbolID
}

func TestSeedPlantsMoneyMarketPositionAtJanuaryFirst(t *testing.T) {
	f := setupFixture(t)
	portfolioID := uuid.New()

	require.NoError(t, f.orchestrator.Seed(portfolioID))

	janFirst := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cash, err := f.symbols.GetByTicker(universe.MoneyMarketTicker)
	require.NoError(t, err)
	require.NotNil(t, cash)

	qty, err := f.positions.LatestQuantity(portfolioID, cash.SymbolID, janFirst)
	require.NoError(t, err)
	require.NotNil(t, qty)
	assert.True(t, qty.Equal(decimal.RequireFromString("1000000")))

	stat, err := f.stats.LatestAtOrBefore(portfolioID, janFirst)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 1000000.0, stat.PortfolioBalance)
	assert.Zero(t, stat.Alpha)
	assert.Zero(t, stat.SharpeRatio)
}

func TestSeedIsADestructiveReset(t *testing.T) {
	f := setupFixture(t)
	portfolioID := uuid.New()
	aaa := f.seedMarket(t)

	// Leftovers from an earlier run
	require.NoError(t, f.positions.Insert(portfolio.PositionSnapshot{
		PositionID: uuid.New(), PortfolioID: portfolioID, SymbolID: aaa,
		Quantity: decimal.RequireFromString("42"), RecordedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, f.trades.Insert(trading.Trade{
		TradeID: uuid.New(), PortfolioID: portfolioID, SymbolID: aaa,
		TradedAt: time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC), Side: trading.SideBuy,
		OrderType: trading.OrderTypeMarket, Price: decimal.RequireFromString("100"),
		Quantity: decimal.RequireFromString("42"), Reason: trading.ReasonRebalancing,
	}))

	require.NoError(t, f.orchestrator.Seed(portfolioID))

	trades, err := f.trades.ListByPortfolio(portfolioID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	qty, err := f.positions.LatestQuantity(portfolioID, aaa, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, qty, "old positions must be cleared")
}

func TestRunProcessesMonthsSequentially(t *testing.T) {
	f := setupFixture(t)
	aaa := f.seedMarket(t)
	portfolioID := uuid.New()

	_, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)
	_, err = f.allocSvc.CreateBatch(portfolioID, "2024-02-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	results := f.orchestrator.Run(portfolioID, []string{"2024-01-15", "2024-02-15"}, 1)
	require.Len(t, results, 2)

	jan := results[0]
	assert.Equal(t, 1, jan.Month)
	assert.Equal(t, "success", jan.Status)
	require.NotNil(t, jan.Replay)
	assert.Equal(t, 31, jan.Replay.DaysUpdated)
	// Entire seed moves into AAA: sell cash, buy shares
	assert.Equal(t, 2, jan.Trades)

	feb := results[1]
	assert.Equal(t, 2, feb.Month)
	assert.Equal(t, "success", feb.Status)
	// Already at target, nothing to trade
	assert.Zero(t, feb.Trades)

	// 1,000,000 at $100 per share
	qty, err := f.positions.LatestQuantity(portfolioID, aaa, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, qty)
	assert.True(t, qty.Equal(decimal.RequireFromString("10000")), "got %s", qty)
}

func TestRunHaltsOnFirstErrorAndKeepsPartialResults(t *testing.T) {
	f := setupFixture(t)
	f.seedMarket(t)
	portfolioID := uuid.New()

	// Only January has a batch; February will fail the lookup
	_, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	results := f.orchestrator.Run(portfolioID, []string{"2024-01-15", "2024-02-15", "2024-03-15"}, 1)
	require.Len(t, results, 2, "must halt before March")

	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "error", results[1].Status)
	assert.Contains(t, results[1].Message, "no allocation batch")

	// January's committed state survives the halt
	stat, err := f.stats.LatestAtOrBefore(portfolioID, time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 1000000.0, stat.PortfolioBalance)
}

func TestRunSkipsMonthsBeforeStartMonth(t *testing.T) {
	f := setupFixture(t)
	f.seedMarket(t)
	portfolioID := uuid.New()

	_, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)
	_, err = f.allocSvc.CreateBatch(portfolioID, "2024-02-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	results := f.orchestrator.Run(portfolioID, []string{"2024-01-15", "2024-02-15"}, 2)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Month)
}
