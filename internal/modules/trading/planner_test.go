package trading

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
	"github.com/finnhq/finn-trader/internal/modules/universe"

	_ "modernc.org/sqlite"
)

type plannerFixture struct {
	db          *sql.DB
	symbols     *universe.SymbolRepository
	prices      *universe.PriceRepository
	positions   *portfolio.PositionRepository
	stats       *portfolio.StatsRepository
	allocations *allocation.Repository
	allocSvc    *allocation.Service
	planner     *Planner
	executor    *Executor
	trades      *TradeRepository
}

func setupPlanner(t *testing.T) *plannerFixture {
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
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	f := &plannerFixture{
		db:          db,
		symbols:     universe.NewSymbolRepository(db, log),
		prices:      universe.NewPriceRepository(db, log),
		positions:   portfolio.NewPositionRepository(db, log),
		stats:       portfolio.NewStatsRepository(db, log),
		allocations: allocation.NewRepository(db, log),
		trades:      NewTradeRepository(db, log),
	}
	f.allocSvc = allocation.NewService(f.allocations, f.symbols, log)
	f.planner = NewPlanner(f.allocations, f.positions, f.stats, f.symbols, f.prices, log)
	f.executor = NewExecutor(db, f.trades, f.positions, log)
	return f
}

func (f *plannerFixture) seedSymbol(t *testing.T, ticker string, day time.Time, price float64) uuid.UUID {
	t.Helper()
	sym, err := f.symbols.Create(ticker, "")
	require.NoError(t, err)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, day, price))
	return sym.SymbolID
}

func (f *plannerFixture) seedPosition(t *testing.T, portfolioID, symbolID uuid.UUID, qty string, at time.Time) {
	t.Helper()
	require.NoError(t, f.positions.Insert(portfolio.PositionSnapshot{
		PositionID:  uuid.New(),
		PortfolioID: portfolioID,
		SymbolID:    symbolID,
		Quantity:    decimal.RequireFromString(qty),
		RecordedAt:  at,
	}))
}

func (f *plannerFixture) seedBalance(t *testing.T, portfolioID uuid.UUID, balance float64, at time.Time) {
	t.Helper()
	require.NoError(t, f.stats.Insert(portfolio.PortfolioStat{
		StatID:           uuid.New(),
		PortfolioID:      portfolioID,
		RecordedAt:       at,
		PortfolioBalance: balance,
	}))
}

// netPortfolioDelta sums signed intent values: buys add, sells subtract.
// Conservation means the net equals zero (cash leaving equities parks in
// the money market at 1:1).
func netPortfolioDelta(intents []TradeIntent) decimal.Decimal {
	net := decimal.Zero
	for _, i := range intents {
		if i.Side == SideBuy {
			net = net.Add(i.Value())
		} else {
			net = net.Sub(i.Value())
		}
	}
	return net
}

func TestPlanRebalancesHoldingsToTargets(t *testing.T) {
	f := setupPlanner(t)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seedAt := day.AddDate(0, 0, -5)

	aID := f.seedSymbol(t, "AAA", day, 10.0)
	bID := f.seedSymbol(t, "BBB", day, 15.0)
	cash, err := f.symbols.EnsureMoneyMarket()
	require.NoError(t, err)

	portfolioID := uuid.New()
	f.seedPosition(t, portfolioID, aID, "100", seedAt)
	f.seedPosition(t, portfolioID, cash.SymbolID, "500", seedAt)
	f.seedBalance(t, portfolioID, 1500, seedAt)

	batchID, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{
		"AAA": 0.5,
		"BBB": 0.5,
	})
	require.NoError(t, err)

	plan, err := f.planner.Plan(batchID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, plan.TotalValue)

	byKey := map[string]TradeIntent{}
	for _, intent := range plan.Intents {
		byKey[intent.SymbolID.String()+"/"+string(intent.Side)] = intent
	}

	// Cash is not in the batch, so it is fully liquidated
	cashSell := byKey[cash.SymbolID.String()+"/Sell"]
	assert.True(t, cashSell.Quantity.Equal(decimal.RequireFromString("500")))

	// AAA target is 750/10 = 75 shares, trim the 25 excess
	aaaSell := byKey[aID.String()+"/Sell"]
	assert.True(t, aaaSell.Quantity.Equal(decimal.RequireFromString("25")))

	// BBB target is 750/15 = 50 shares, bought from zero
	bbbBuy := byKey[bID.String()+"/Buy"]
	assert.True(t, bbbBuy.Quantity.Equal(decimal.RequireFromString("50")))

	assert.True(t, netPortfolioDelta(plan.Intents).IsZero(),
		"total portfolio value must be conserved, got net %s", netPortfolioDelta(plan.Intents))
}

func TestPlanRoutesResidualThroughMoneyMarket(t *testing.T) {
	f := setupPlanner(t)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seedAt := day.AddDate(0, 0, -5)

	aID := f.seedSymbol(t, "AAA", day, 10.0)
	// BBB is allocated but priced at zero, so it is skipped
	bID := f.seedSymbol(t, "BBB", day, 0.0)

	portfolioID := uuid.New()
	f.seedPosition(t, portfolioID, aID, "100", seedAt)
	f.seedBalance(t, portfolioID, 1000, seedAt)

	batchID, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{
		"AAA": 0.5,
		"BBB": 0.5,
	})
	require.NoError(t, err)

	plan, err := f.planner.Plan(batchID)
	require.NoError(t, err)

	// No trade may reference the zero-priced symbol
	for _, intent := range plan.Intents {
		assert.NotEqual(t, bID, intent.SymbolID)
	}

	// AAA trims from 100 to 50 shares; the $500 proceeds park in cash
	cash, err := f.symbols.GetByTicker(universe.MoneyMarketTicker)
	require.NoError(t, err)
	require.NotNil(t, cash)

	var cashBuy *TradeIntent
	for i := range plan.Intents {
		if plan.Intents[i].SymbolID == cash.SymbolID {
			cashBuy = &plan.Intents[i]
		}
	}
	require.NotNil(t, cashBuy, "expected a balancing money-market buy")
	assert.Equal(t, SideBuy, cashBuy.Side)
	assert.Equal(t, ReasonBalanceAdjustment, cashBuy.Reason)
	assert.True(t, cashBuy.Price.Equal(decimal.New(1, 0)))
	assert.True(t, cashBuy.Quantity.Equal(decimal.RequireFromString("500")))

	assert.True(t, netPortfolioDelta(plan.Intents).IsZero())
}

func TestPlanDropsSubNoiseDeficits(t *testing.T) {
	f := setupPlanner(t)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seedAt := day.AddDate(0, 0, -5)

	aID := f.seedSymbol(t, "AAA", day, 10.0)

	portfolioID := uuid.New()
	// Holding 99.99996 of a 100-share target leaves a 0.00004 deficit,
	// below the 0.0001 noise floor
	f.seedPosition(t, portfolioID, aID, "99.99996", seedAt)
	f.seedBalance(t, portfolioID, 1000, seedAt)

	batchID, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	plan, err := f.planner.Plan(batchID)
	require.NoError(t, err)
	assert.Empty(t, plan.Intents)
}

func TestPlanFailsWithoutBalanceOrBatch(t *testing.T) {
	f := setupPlanner(t)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f.seedSymbol(t, "AAA", day, 10.0)

	_, err := f.planner.Plan(uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no allocations found")

	// Batch exists but the portfolio has no stat history
	portfolioID := uuid.New()
	batchID, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	_, err = f.planner.Plan(batchID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no portfolio stats")

	// Zero balance is rejected before any planning
	f.seedBalance(t, portfolioID, 0, day.AddDate(0, 0, -1))
	_, err = f.planner.Plan(batchID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid portfolio balance")
}

func TestPlanQuantitiesRoundToFourPlaces(t *testing.T) {
	f := setupPlanner(t)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	aID := f.seedSymbol(t, "AAA", day, 3.0)
	_ = aID

	portfolioID := uuid.New()
	f.seedBalance(t, portfolioID, 1000, day.AddDate(0, 0, -1))

	batchID, err := f.allocSvc.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAA": 1.0})
	require.NoError(t, err)

	plan, err := f.planner.Plan(batchID)
	require.NoError(t, err)
	require.Len(t, plan.Intents, 1)

	// 1000/3 = 333.3333... rounds half-up at 4 places
	assert.True(t, plan.Intents[0].Quantity.Equal(decimal.RequireFromString("333.3333")),
		"got %s", plan.Intents[0].Quantity)
}
