package trading

import "database/sql"

// TradingSchema holds the append-only trade ledger. Price and quantity are
// stored as TEXT so arbitrary-precision decimals survive the round trip.
const TradingSchema = `
CREATE TABLE IF NOT EXISTS trades (
    trade_id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    symbol_id TEXT NOT NULL,
    traded_at TEXT NOT NULL,
    side TEXT NOT NULL,
    order_type TEXT NOT NULL,
    price TEXT NOT NULL,
    quantity TEXT NOT NULL,
    reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades(portfolio_id, traded_at);
`

// InitSchema ensures trading tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(TradingSchema)
	return err
}
