package valuation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnhq/finn-trader/internal/modules/portfolio"
)

func (f *fixture) seedPosition(t *testing.T, portfolioID, symbolID uuid.UUID, qty string, at time.Time) {
	t.Helper()
	require.NoError(t, f.positions.Insert(portfolio.PositionSnapshot{
		PositionID:  uuid.New(),
		PortfolioID: portfolioID,
		SymbolID:    symbolID,
		Quantity:    decimal.RequireFromString(qty),
		RecordedAt:  at,
	}))
}

func (f *fixture) statOn(t *testing.T, portfolioID uuid.UUID, day time.Time) *portfolio.PortfolioStat {
	t.Helper()
	stat, err := f.stats.LatestAtOrBefore(portfolioID, day.Add(12*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, stat, "expected a stat on %s", day)
	return stat
}

func TestReplayMonthEmitsOneStatPerCalendarDay(t *testing.T) {
	f := setupFixture(t)

	sym, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	dec29 := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	f.seedPosition(t, portfolioID, sym.SymbolID, "10", dec29)
	f.seedStat(t, portfolioID, dec29, 1000)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, dec29, 100))
	require.NoError(t, f.prices.Upsert(sym.SymbolID, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 110))

	summary, err := f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)

	assert.Equal(t, 31, summary.TotalDays)
	assert.Equal(t, 31, summary.DaysUpdated)
	assert.Empty(t, summary.SkippedDates)

	// Jan 2 still prices at the Dec 29 close
	jan2 := f.statOn(t, portfolioID, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.InDelta(t, 1000, jan2.PortfolioBalance, 1e-9)

	// Jan 3 picks up the new price
	jan3 := f.statOn(t, portfolioID, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.InDelta(t, 1100, jan3.PortfolioBalance, 1e-9)
}

func TestReplayWeekendCarriesFridayForwardExactly(t *testing.T) {
	f := setupFixture(t)

	sym, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	dec29 := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	f.seedPosition(t, portfolioID, sym.SymbolID, "10", dec29)
	f.seedStat(t, portfolioID, dec29, 1000)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, dec29, 100))
	require.NoError(t, f.prices.Upsert(sym.SymbolID, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), 120))

	_, err = f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)

	// 2024-01-05 is a Friday, 01-06 Saturday, 01-07 Sunday
	friday := f.statOn(t, portfolioID, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	saturday := f.statOn(t, portfolioID, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))
	sunday := f.statOn(t, portfolioID, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC))

	for _, weekend := range []*portfolio.PortfolioStat{saturday, sunday} {
		assert.Equal(t, friday.PortfolioBalance, weekend.PortfolioBalance)
		assert.Equal(t, friday.Alpha, weekend.Alpha)
		assert.Equal(t, friday.Beta, weekend.Beta)
		assert.Equal(t, friday.MaxDrawdown, weekend.MaxDrawdown)
		assert.Equal(t, friday.SharpeRatio, weekend.SharpeRatio)
		assert.Equal(t, friday.StdDev, weekend.StdDev)
		assert.Equal(t, friday.Turnover, weekend.Turnover)
	}
}

func TestReplaySkipsDaysBeforeAnyPositionExists(t *testing.T) {
	f := setupFixture(t)

	sym, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	// First snapshot lands mid-month
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	f.seedPosition(t, portfolioID, sym.SymbolID, "10", jan10)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, jan10, 100))

	summary, err := f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)

	assert.Equal(t, 31, summary.TotalDays)
	assert.Equal(t, 22, summary.DaysUpdated)
	require.Len(t, summary.SkippedDates, 9)
	assert.Equal(t, "2024-01-01", summary.SkippedDates[0])
	assert.Equal(t, "2024-01-09", summary.SkippedDates[8])
}

func TestReplayIsIdempotentForADeterministicMonth(t *testing.T) {
	f := setupFixture(t)

	sym, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	dec29 := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	f.seedPosition(t, portfolioID, sym.SymbolID, "10", dec29)
	f.seedStat(t, portfolioID, dec29, 1000)
	require.NoError(t, f.prices.Upsert(sym.SymbolID, dec29, 100))
	require.NoError(t, f.prices.Upsert(sym.SymbolID, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 110))
	require.NoError(t, f.prices.Upsert(sym.SymbolID, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), 95))

	first, err := f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)

	snapshot := map[string]portfolio.PortfolioStat{}
	for day := 1; day <= 31; day++ {
		d := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		snapshot[d.Format("2006-01-02")] = *f.statOn(t, portfolioID, d)
	}

	second, err := f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)
	assert.Equal(t, first.DaysUpdated, second.DaysUpdated)

	for day := 1; day <= 31; day++ {
		d := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		before := snapshot[d.Format("2006-01-02")]
		after := f.statOn(t, portfolioID, d)
		assert.Equal(t, before.PortfolioBalance, after.PortfolioBalance, "balance changed on %s", d)
		assert.Equal(t, before.MaxDrawdown, after.MaxDrawdown, "drawdown changed on %s", d)
		assert.Equal(t, before.StdDev, after.StdDev, "stddev changed on %s", d)
	}
}

func TestReplayZeroQuantityPositionContributesNothing(t *testing.T) {
	f := setupFixture(t)

	aaa, err := f.symbols.Create("AAA", "")
	require.NoError(t, err)
	bbb, err := f.symbols.Create("BBB", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	dec29 := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	f.seedPosition(t, portfolioID, aaa.SymbolID, "10", dec29)
	// BBB was held once and explicitly closed
	f.seedPosition(t, portfolioID, bbb.SymbolID, "0", dec29)
	f.seedStat(t, portfolioID, dec29, 1000)
	require.NoError(t, f.prices.Upsert(aaa.SymbolID, dec29, 100))
	require.NoError(t, f.prices.Upsert(bbb.SymbolID, dec29, 999))

	_, err = f.replayer.ReplayMonth(portfolioID, 2024, time.January)
	require.NoError(t, err)

	jan2 := f.statOn(t, portfolioID, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.InDelta(t, 1000, jan2.PortfolioBalance, 1e-9)
}
