package universe

import "database/sql"

// UniverseSchema holds symbols, sectors and historical daily prices
const UniverseSchema = `
CREATE TABLE IF NOT EXISTS symbols (
    symbol_id TEXT PRIMARY KEY,
    symbol TEXT UNIQUE NOT NULL,
    name TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sectors (
    sector_id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS symbol_sectors (
    symbol_id TEXT NOT NULL,
    sector_id TEXT NOT NULL,
    PRIMARY KEY (symbol_id, sector_id)
);

CREATE TABLE IF NOT EXISTS symbol_prices (
    symbol_id TEXT NOT NULL,
    price_at TEXT NOT NULL,
    price REAL NOT NULL,
    PRIMARY KEY (symbol_id, price_at)
);

CREATE INDEX IF NOT EXISTS idx_symbol_prices_date ON symbol_prices(price_at);
`

// InitSchema ensures universe tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(UniverseSchema)
	return err
}
