package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles allocation persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

const allocationColumns = "allocation_id, portfolio_id, symbol_id, allocation_pct, allocated_at, allocation_batch_id"

// InsertBatch writes all rows of one batch in a single transaction
func (r *Repository) InsertBatch(allocations []Allocation) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO allocations (` + allocationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare allocation insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range allocations {
		_, err := stmt.Exec(
			a.AllocationID.String(),
			a.PortfolioID.String(),
			a.SymbolID.String(),
			a.AllocationPct,
			a.AllocatedAt.UTC().Format(time.RFC3339),
			a.AllocationBatchID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit allocation batch: %w", err)
	}

	return nil
}

// GetByBatch returns all rows of one batch
func (r *Repository) GetByBatch(batchID uuid.UUID) ([]Allocation, error) {
	query := `
		SELECT ` + allocationColumns + ` FROM allocations
		WHERE allocation_batch_id = ?
		ORDER BY symbol_id
	`

	return r.queryAllocations(query, batchID.String())
}

// ListByPortfolio returns every allocation row for a portfolio, oldest
// batch first
func (r *Repository) ListByPortfolio(portfolioID uuid.UUID) ([]Allocation, error) {
	query := `
		SELECT ` + allocationColumns + ` FROM allocations
		WHERE portfolio_id = ?
		ORDER BY allocated_at ASC, allocation_batch_id
	`

	return r.queryAllocations(query, portfolioID.String())
}

// FindBatchInWindow returns the id of the most recent batch whose as-of
// date falls within [from, to], or uuid.Nil when none exists
func (r *Repository) FindBatchInWindow(portfolioID uuid.UUID, from, to time.Time) (uuid.UUID, error) {
	query := `
		SELECT allocation_batch_id FROM allocations
		WHERE portfolio_id = ? AND allocated_at >= ? AND allocated_at <= ?
		ORDER BY allocated_at DESC
		LIMIT 1
	`

	var batchID string
	err := r.db.QueryRow(query,
		portfolioID.String(),
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	).Scan(&batchID)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find allocation batch: %w", err)
	}

	parsed, err := uuid.Parse(batchID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse batch id: %w", err)
	}

	return parsed, nil
}

func (r *Repository) queryAllocations(query string, args ...interface{}) ([]Allocation, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	return allocations, nil
}

func scanAllocation(rows *sql.Rows) (Allocation, error) {
	var (
		a                                   Allocation
		allocationID, portfolioID, symbolID string
		allocatedAt, batchID                string
	)

	if err := rows.Scan(&allocationID, &portfolioID, &symbolID, &a.AllocationPct, &allocatedAt, &batchID); err != nil {
		return a, err
	}

	var err error
	if a.AllocationID, err = uuid.Parse(allocationID); err != nil {
		return a, fmt.Errorf("failed to parse allocation id: %w", err)
	}
	if a.PortfolioID, err = uuid.Parse(portfolioID); err != nil {
		return a, fmt.Errorf("failed to parse portfolio id: %w", err)
	}
	if a.SymbolID, err = uuid.Parse(symbolID); err != nil {
		return a, fmt.Errorf("failed to parse symbol id: %w", err)
	}
	if a.AllocationBatchID, err = uuid.Parse(batchID); err != nil {
		return a, fmt.Errorf("failed to parse batch id: %w", err)
	}
	if a.AllocatedAt, err = time.Parse(time.RFC3339, allocatedAt); err != nil {
		return a, fmt.Errorf("failed to parse allocated_at: %w", err)
	}

	return a, nil
}
