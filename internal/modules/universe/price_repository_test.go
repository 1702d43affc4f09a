package universe

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestPriceOnExactDate(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	sym, err := symbols.Create("AAPL", "Apple Inc.")
	require.NoError(t, err)

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, prices.Upsert(sym.SymbolID, day, 185.25))

	price, found, err := prices.PriceOn(sym.SymbolID, day)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 185.25, price)
}

func TestPriceOnFallsBackToMostRecentPrior(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	sym, err := symbols.Create("MSFT", "")
	require.NoError(t, err)

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, prices.Upsert(sym.SymbolID, friday, 370.0))

	// Saturday has no bar, the Friday close carries forward
	saturday := friday.AddDate(0, 0, 1)
	price, found, err := prices.PriceOn(sym.SymbolID, saturday)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 370.0, price)
}

func TestPriceOnReturnsNotFoundBeforeHistory(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	sym, err := symbols.Create("NVDA", "")
	require.NoError(t, err)

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, prices.Upsert(sym.SymbolID, day, 500.0))

	_, found, err := prices.PriceOn(sym.SymbolID, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMoneyMarketAlwaysPricesAtOne(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	cash, err := symbols.EnsureMoneyMarket()
	require.NoError(t, err)

	// No price rows exist for the cash instrument, any date works
	price, found, err := prices.PriceOn(cash.SymbolID, time.Date(1999, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1.0, price)
}

func TestEnsureMoneyMarketIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())

	first, err := symbols.EnsureMoneyMarket()
	require.NoError(t, err)
	second, err := symbols.EnsureMoneyMarket()
	require.NoError(t, err)

	assert.Equal(t, first.SymbolID, second.SymbolID)
	assert.Equal(t, MoneyMarketTicker, first.Symbol)
}

func TestBulkImportAndSeriesInRange(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	sym, err := symbols.Create("SPY", "")
	require.NoError(t, err)

	points := []SymbolPrice{
		{SymbolID: sym.SymbolID, PriceAt: "2024-01-02", Price: 470.0},
		{SymbolID: sym.SymbolID, PriceAt: "2024-01-03", Price: 471.5},
		{SymbolID: sym.SymbolID, PriceAt: "2024-02-01", Price: 490.0},
	}

	imported, err := prices.BulkImport(points)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	series, err := prices.SeriesInRange(sym.SymbolID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 470.0, series["2024-01-02"])
	assert.Equal(t, 471.5, series["2024-01-03"])
}

func TestUpsertReplacesExistingPoint(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())
	prices := NewPriceRepository(db, zerolog.Nop())

	sym, err := symbols.Create("TSLA", "")
	require.NoError(t, err)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, prices.Upsert(sym.SymbolID, day, 200.0))
	require.NoError(t, prices.Upsert(sym.SymbolID, day, 201.5))

	price, found, err := prices.PriceOn(sym.SymbolID, day)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 201.5, price)
}

func TestSymbolTickerIsNormalized(t *testing.T) {
	db := setupTestDB(t)
	symbols := NewSymbolRepository(db, zerolog.Nop())

	created, err := symbols.Create("  amzn ", "Amazon")
	require.NoError(t, err)
	assert.Equal(t, "AMZN", created.Symbol)

	found, err := symbols.GetByTicker("amzn")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.SymbolID, found.SymbolID)

	missing, err := symbols.GetByID(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
