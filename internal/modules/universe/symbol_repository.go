package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SymbolRepository handles symbol and sector database operations
type SymbolRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSymbolRepository creates a new symbol repository
func NewSymbolRepository(db *sql.DB, log zerolog.Logger) *SymbolRepository {
	return &SymbolRepository{
		db:  db,
		log: log.With().Str("repo", "symbol").Logger(),
	}
}

// Create inserts a new symbol
func (r *SymbolRepository) Create(ticker, name string) (*Symbol, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}

	sym := Symbol{
		SymbolID:  uuid.New(),
		Symbol:    ticker,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO symbols (symbol_id, symbol, name, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		sym.SymbolID.String(),
		sym.Symbol,
		nullString(sym.Name),
		sym.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol: %w", err)
	}

	r.log.Info().Str("symbol", sym.Symbol).Msg("Symbol created")
	return &sym, nil
}

// GetByTicker returns a symbol by its ticker, or nil if not found
func (r *SymbolRepository) GetByTicker(ticker string) (*Symbol, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	query := "SELECT symbol_id, symbol, name, created_at FROM symbols WHERE symbol = ?"

	sym, err := r.scanSymbol(r.db.QueryRow(query, ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol by ticker: %w", err)
	}

	return sym, nil
}

// GetByID returns a symbol by id, or nil if not found
func (r *SymbolRepository) GetByID(symbolID uuid.UUID) (*Symbol, error) {
	query := "SELECT symbol_id, symbol, name, created_at FROM symbols WHERE symbol_id = ?"

	sym, err := r.scanSymbol(r.db.QueryRow(query, symbolID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol by id: %w", err)
	}

	return sym, nil
}

// List returns all symbols ordered by ticker
func (r *SymbolRepository) List() ([]Symbol, error) {
	query := "SELECT symbol_id, symbol, name, created_at FROM symbols ORDER BY symbol"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []Symbol
	for rows.Next() {
		var (
			sym       Symbol
			id        string
			name      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&id, &sym.Symbol, &name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.SymbolID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse symbol id: %w", err)
		}
		if name.Valid {
			sym.Name = name.String
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			sym.CreatedAt = t
		}
		symbols = append(symbols, sym)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// EnsureMoneyMarket guarantees the reserved cash instrument exists and
// returns it
func (r *SymbolRepository) EnsureMoneyMarket() (*Symbol, error) {
	sym, err := r.GetByTicker(MoneyMarketTicker)
	if err != nil {
		return nil, err
	}
	if sym != nil {
		return sym, nil
	}

	return r.Create(MoneyMarketTicker, "Money Market (cash)")
}

// CreateSector inserts a new sector
func (r *SymbolRepository) CreateSector(name string) (*Sector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sector name cannot be empty")
	}

	sector := Sector{
		SectorID: uuid.New(),
		Name:     name,
	}

	_, err := r.db.Exec(
		"INSERT INTO sectors (sector_id, name) VALUES (?, ?)",
		sector.SectorID.String(), sector.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sector: %w", err)
	}

	return &sector, nil
}

// LinkSymbolSector associates a symbol with a sector
func (r *SymbolRepository) LinkSymbolSector(symbolID, sectorID uuid.UUID) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO symbol_sectors (symbol_id, sector_id) VALUES (?, ?)",
		symbolID.String(), sectorID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to link symbol to sector: %w", err)
	}
	return nil
}

func (r *SymbolRepository) scanSymbol(row *sql.Row) (*Symbol, error) {
	var (
		sym       Symbol
		id        string
		name      sql.NullString
		createdAt string
	)

	if err := row.Scan(&id, &sym.Symbol, &name, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbol id: %w", err)
	}
	sym.SymbolID = parsed

	if name.Valid {
		sym.Name = name.String
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		sym.CreatedAt = t
	}

	return &sym, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
