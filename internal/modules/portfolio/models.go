package portfolio

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User owns portfolios
type User struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Portfolio groups positions, trades and stats under one owner
type Portfolio struct {
	PortfolioID uuid.UUID `json:"portfolio_id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// PositionSnapshot is one immutable entry in the append-only position
// ledger. The current quantity for a symbol is the snapshot with the
// greatest recorded_at at or before the query time. A zero quantity is an
// explicitly closed position, distinct from "no snapshot exists".
type PositionSnapshot struct {
	PositionID  uuid.UUID       `json:"position_id"`
	PortfolioID uuid.UUID       `json:"portfolio_id"`
	SymbolID    uuid.UUID       `json:"symbol_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// PortfolioStat is one append-only daily valuation row. The most recent
// row by recorded_at is authoritative for a date.
type PortfolioStat struct {
	StatID           uuid.UUID `json:"stat_id"`
	PortfolioID      uuid.UUID `json:"portfolio_id"`
	RecordedAt       time.Time `json:"recorded_at"`
	PortfolioBalance float64   `json:"portfolio_balance"`
	Alpha            float64   `json:"alpha"`
	Beta             float64   `json:"beta"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	StdDev           float64   `json:"std_dev"`
	Turnover         float64   `json:"turnover"`
}
