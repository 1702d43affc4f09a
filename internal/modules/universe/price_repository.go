package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PriceRepository handles historical daily price lookups and imports.
//
// Lookup semantics: a missing price on a given date falls back to the most
// recent prior price point with a warning, never an error. The reserved
// money-market instrument is always priced at 1.0.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "price").Logger(),
	}
}

// PriceOn returns the price for a symbol on a calendar day. Returns
// found=false only when no price point exists at or before the day.
func (r *PriceRepository) PriceOn(symbolID uuid.UUID, day time.Time) (price float64, found bool, err error) {
	isCash, err := r.isMoneyMarket(symbolID)
	if err != nil {
		return 0, false, err
	}
	if isCash {
		return 1.0, true, nil
	}

	dateStr := day.Format(DateFormat)

	query := "SELECT price FROM symbol_prices WHERE symbol_id = ? AND price_at = ?"
	err = r.db.QueryRow(query, symbolID.String(), dateStr).Scan(&price)
	if err == nil {
		return price, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to query price: %w", err)
	}

	// Fall back to the most recent prior price point
	fallbackQuery := `
		SELECT price, price_at FROM symbol_prices
		WHERE symbol_id = ? AND price_at < ?
		ORDER BY price_at DESC
		LIMIT 1
	`

	var priceAt string
	err = r.db.QueryRow(fallbackQuery, symbolID.String(), dateStr).Scan(&price, &priceAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query fallback price: %w", err)
	}

	r.log.Warn().
		Str("symbol_id", symbolID.String()).
		Str("requested", dateStr).
		Str("used", priceAt).
		Msg("No price for date, using most recent prior price")

	return price, true, nil
}

// SeriesInRange returns prices keyed by date (YYYY-MM-DD) for a symbol
// within [from, to] inclusive
func (r *PriceRepository) SeriesInRange(symbolID uuid.UUID, from, to time.Time) (map[string]float64, error) {
	query := `
		SELECT price_at, price FROM symbol_prices
		WHERE symbol_id = ? AND price_at >= ? AND price_at <= ?
		ORDER BY price_at ASC
	`

	rows, err := r.db.Query(query, symbolID.String(), from.Format(DateFormat), to.Format(DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	series := make(map[string]float64)
	for rows.Next() {
		var (
			priceAt string
			price   float64
		)
		if err := rows.Scan(&priceAt, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		series[priceAt] = price
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price series: %w", err)
	}

	return series, nil
}

// Upsert inserts or replaces a single daily price point
func (r *PriceRepository) Upsert(symbolID uuid.UUID, day time.Time, price float64) error {
	query := `
		INSERT OR REPLACE INTO symbol_prices (symbol_id, price_at, price)
		VALUES (?, ?, ?)
	`

	_, err := r.db.Exec(query, symbolID.String(), day.Format(DateFormat), price)
	if err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}

	return nil
}

// BulkImport inserts many price points in one transaction
func (r *PriceRepository) BulkImport(prices []SymbolPrice) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO symbol_prices (symbol_id, price_at, price)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare import statement: %w", err)
	}
	defer stmt.Close()

	imported := 0
	for _, p := range prices {
		if _, err := stmt.Exec(p.SymbolID.String(), p.PriceAt, p.Price); err != nil {
			return 0, fmt.Errorf("failed to import price for %s on %s: %w", p.SymbolID, p.PriceAt, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit price import: %w", err)
	}

	r.log.Info().Int("count", imported).Msg("Prices imported")
	return imported, nil
}

func (r *PriceRepository) isMoneyMarket(symbolID uuid.UUID) (bool, error) {
	var ticker string
	err := r.db.QueryRow("SELECT symbol FROM symbols WHERE symbol_id = ?", symbolID.String()).Scan(&ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve symbol: %w", err)
	}
	return ticker == MoneyMarketTicker, nil
}
