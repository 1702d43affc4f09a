package portfolio

import "database/sql"

// PortfolioSchema holds users, portfolios, the append-only position ledger
// and the append-only daily stats. Position quantities are stored as TEXT
// so arbitrary-precision decimals survive the round trip.
const PortfolioSchema = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    name TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolios (
    portfolio_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    position_id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    symbol_id TEXT NOT NULL,
    quantity TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions(portfolio_id, symbol_id, recorded_at);

CREATE TABLE IF NOT EXISTS portfolio_stats (
    stat_id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    portfolio_balance REAL NOT NULL,
    alpha REAL NOT NULL DEFAULT 0,
    beta REAL NOT NULL DEFAULT 0,
    max_drawdown REAL NOT NULL DEFAULT 0,
    sharpe_ratio REAL NOT NULL DEFAULT 0,
    std_dev REAL NOT NULL DEFAULT 0,
    turnover REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_portfolio_stats_portfolio ON portfolio_stats(portfolio_id, recorded_at);
`

// InitSchema ensures portfolio tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(PortfolioSchema)
	return err
}
