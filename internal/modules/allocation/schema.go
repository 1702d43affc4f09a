package allocation

import "database/sql"

// AllocationSchema holds target weights grouped into batches
const AllocationSchema = `
CREATE TABLE IF NOT EXISTS allocations (
    allocation_id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    symbol_id TEXT NOT NULL,
    allocation_pct REAL NOT NULL,
    allocated_at TEXT NOT NULL,
    allocation_batch_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_allocations_batch ON allocations(allocation_batch_id);
CREATE INDEX IF NOT EXISTS idx_allocations_portfolio ON allocations(portfolio_id, allocated_at);
`

// InitSchema ensures allocation tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(AllocationSchema)
	return err
}
