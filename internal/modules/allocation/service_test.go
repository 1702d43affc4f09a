package allocation

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnhq/finn-trader/internal/modules/universe"

	_ "modernc.org/sqlite"
)

func setupTestService(t *testing.T) (*Service, *Repository, *universe.SymbolRepository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, universe.InitSchema(db))
	require.NoError(t, InitSchema(db))

	symbols := universe.NewSymbolRepository(db, zerolog.Nop())
	repo := NewRepository(db, zerolog.Nop())
	return NewService(repo, symbols, zerolog.Nop()), repo, symbols
}

func TestCreateBatchAcceptsWeightsSummingToOne(t *testing.T) {
	service, repo, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)
	_, err = symbols.Create("MSFT", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	batchID, err := service.CreateBatch(portfolioID, "2024-01-15", map[string]float64{
		"AAPL": 0.6,
		"MSFT": 0.4,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, batchID)

	rows, err := repo.GetByBatch(batchID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	total := 0.0
	for _, a := range rows {
		assert.Equal(t, portfolioID, a.PortfolioID)
		assert.Equal(t, batchID, a.AllocationBatchID)
		total += a.AllocationPct
	}
	assert.InDelta(t, 1.0, total, SumTolerance)
}

func TestCreateBatchRejectsWeightsOffByMoreThanTolerance(t *testing.T) {
	service, _, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)
	_, err = symbols.Create("MSFT", "")
	require.NoError(t, err)

	_, err = service.CreateBatch(uuid.New(), "2024-01-15", map[string]float64{
		"AAPL": 0.6,
		"MSFT": 0.3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must add up to 1")
	assert.Contains(t, err.Error(), "0.9")
}

func TestCreateBatchToleratesTinyFloatNoise(t *testing.T) {
	service, _, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)
	_, err = symbols.Create("MSFT", "")
	require.NoError(t, err)

	_, err = service.CreateBatch(uuid.New(), "2024-01-15", map[string]float64{
		"AAPL": 0.60001,
		"MSFT": 0.39998,
	})
	assert.NoError(t, err)
}

func TestCreateBatchRejectsUnknownSymbol(t *testing.T) {
	service, _, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)

	_, err = service.CreateBatch(uuid.New(), "2024-01-15", map[string]float64{
		"AAPL": 0.5,
		"ZZZZ": 0.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZZZ")
}

func TestCreateBatchRejectsEmptyAndBadDate(t *testing.T) {
	service, _, symbols := setupTestService(t)

	_, err := service.CreateBatch(uuid.New(), "2024-01-15", nil)
	assert.Error(t, err)

	_, err = symbols.Create("AAPL", "")
	require.NoError(t, err)

	_, err = service.CreateBatch(uuid.New(), "15/01/2024", map[string]float64{"AAPL": 1.0})
	assert.Error(t, err)
}

func TestFindBatchInWindow(t *testing.T) {
	service, repo, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	janBatch, err := service.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAPL": 1.0})
	require.NoError(t, err)
	febBatch, err := service.CreateBatch(portfolioID, "2024-02-15", map[string]float64{"AAPL": 1.0})
	require.NoError(t, err)

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	found, err := repo.FindBatchInWindow(portfolioID, jan, jan.AddDate(0, 1, -1))
	require.NoError(t, err)
	assert.Equal(t, janBatch, found)

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	found, err = repo.FindBatchInWindow(portfolioID, feb, feb.AddDate(0, 1, -1))
	require.NoError(t, err)
	assert.Equal(t, febBatch, found)

	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	found, err = repo.FindBatchInWindow(portfolioID, mar, mar.AddDate(0, 1, -1))
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, found)
}

func TestBatchesByPortfolioGroupsRows(t *testing.T) {
	service, _, symbols := setupTestService(t)

	_, err := symbols.Create("AAPL", "")
	require.NoError(t, err)
	_, err = symbols.Create("MSFT", "")
	require.NoError(t, err)

	portfolioID := uuid.New()
	first, err := service.CreateBatch(portfolioID, "2024-01-15", map[string]float64{"AAPL": 0.5, "MSFT": 0.5})
	require.NoError(t, err)
	second, err := service.CreateBatch(portfolioID, "2024-02-15", map[string]float64{"AAPL": 1.0})
	require.NoError(t, err)

	batches, err := service.BatchesByPortfolio(portfolioID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, first, batches[0].AllocationBatchID)
	assert.Len(t, batches[0].Allocations, 2)
	assert.Equal(t, second, batches[1].AllocationBatchID)
	assert.Len(t, batches[1].Allocations, 1)
}
