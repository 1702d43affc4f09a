package universe

import (
	"time"

	"github.com/google/uuid"
)

// MoneyMarketTicker is the reserved synthetic cash instrument. It is always
// priced at 1.0 and absorbs rebalancing residue so total portfolio value is
// conserved across a rebalance.
const MoneyMarketTicker = "MONEY_MARKET"

// Symbol represents a tradable instrument
type Symbol struct {
	SymbolID  uuid.UUID `json:"symbol_id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sector represents an industry sector
type Sector struct {
	SectorID uuid.UUID `json:"sector_id"`
	Name     string    `json:"name"`
}

// SymbolPrice is one historical daily close for a symbol
type SymbolPrice struct {
	SymbolID uuid.UUID `json:"symbol_id"`
	PriceAt  string    `json:"price_at"` // YYYY-MM-DD
	Price    float64   `json:"price"`
}

// DateFormat is the date-only layout used for price and allocation dates
const DateFormat = "2006-01-02"
