package allocation

import (
	"time"

	"github.com/google/uuid"
)

// SumTolerance is the accepted deviation of a batch's percentage sum from 1.0
const SumTolerance = 1e-4

// Allocation is one target weight inside a batch. All rows sharing an
// AllocationBatchID describe one rebalance event.
type Allocation struct {
	AllocationID      uuid.UUID `json:"allocation_id"`
	PortfolioID       uuid.UUID `json:"portfolio_id"`
	SymbolID          uuid.UUID `json:"symbol_id"`
	AllocationPct     float64   `json:"allocation_pct"`
	AllocatedAt       time.Time `json:"allocated_at"`
	AllocationBatchID uuid.UUID `json:"allocation_batch_id"`
}

// Batch is a grouped view of one rebalance event
type Batch struct {
	AllocationBatchID uuid.UUID    `json:"allocation_batch_id"`
	PortfolioID       uuid.UUID    `json:"portfolio_id"`
	AllocatedAt       time.Time    `json:"allocated_at"`
	Allocations       []Allocation `json:"allocations"`
}
