package allocation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/modules/universe"
)

// ValidationError marks a batch rejected on its content, as opposed to a
// storage failure
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Service validates and writes allocation batches
type Service struct {
	repo    *Repository
	symbols *universe.SymbolRepository
	log     zerolog.Logger
}

// NewService creates a new allocation service
func NewService(repo *Repository, symbols *universe.SymbolRepository, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		symbols: symbols,
		log:     log.With().Str("service", "allocation").Logger(),
	}
}

// CreateBatch validates target weights and writes them as one batch.
// Weights are keyed by ticker and must sum to 1 within SumTolerance; every
// ticker must already exist. Returns the new batch id.
func (s *Service) CreateBatch(portfolioID uuid.UUID, date string, weights map[string]float64) (uuid.UUID, error) {
	if len(weights) == 0 {
		return uuid.Nil, validationErrorf("no allocations provided")
	}

	total := 0.0
	for _, pct := range weights {
		total += pct
	}
	if math.Abs(total-1.0) > SumTolerance {
		return uuid.Nil, validationErrorf("allocation percentages must add up to 1. Current total: %g", total)
	}

	allocatedAt, err := time.Parse(universe.DateFormat, date)
	if err != nil {
		return uuid.Nil, validationErrorf("invalid date %q, expected YYYY-MM-DD: %v", date, err)
	}

	batchID := uuid.New()
	allocations := make([]Allocation, 0, len(weights))
	for ticker, pct := range weights {
		sym, err := s.symbols.GetByTicker(ticker)
		if err != nil {
			return uuid.Nil, err
		}
		if sym == nil {
			return uuid.Nil, validationErrorf("symbol %s not found", ticker)
		}

		allocations = append(allocations, Allocation{
			AllocationID:      uuid.New(),
			PortfolioID:       portfolioID,
			SymbolID:          sym.SymbolID,
			AllocationPct:     pct,
			AllocatedAt:       allocatedAt,
			AllocationBatchID: batchID,
		})
	}

	if err := s.repo.InsertBatch(allocations); err != nil {
		return uuid.Nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Str("batch_id", batchID.String()).
		Int("symbols", len(allocations)).
		Msg("Allocation batch created")

	return batchID, nil
}

// BatchesByPortfolio returns all allocations grouped into batches, oldest
// first
func (s *Service) BatchesByPortfolio(portfolioID uuid.UUID) ([]Batch, error) {
	allocations, err := s.repo.ListByPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}

	var batches []Batch
	index := map[uuid.UUID]int{}
	for _, a := range allocations {
		i, ok := index[a.AllocationBatchID]
		if !ok {
			i = len(batches)
			index[a.AllocationBatchID] = i
			batches = append(batches, Batch{
				AllocationBatchID: a.AllocationBatchID,
				PortfolioID:       a.PortfolioID,
				AllocatedAt:       a.AllocatedAt,
			})
		}
		batches[i].Allocations = append(batches[i].Allocations, a)
	}

	return batches, nil
}
