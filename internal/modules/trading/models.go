package trading

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

const (
	// OrderTypeMarket is the only order type the engine produces
	OrderTypeMarket = "Market"

	// ReasonRebalancing marks trades generated by the planner
	ReasonRebalancing = "Portfolio rebalancing"
	// ReasonBalanceAdjustment marks the residual money-market trade
	ReasonBalanceAdjustment = "Balance adjustment"
)

// MinTradeQuantity is the noise floor: planned deficits below this many
// shares are dropped
var MinTradeQuantity = decimal.RequireFromString("0.0001")

// QuantityPrecision is the decimal precision of planned share quantities
const QuantityPrecision = 4

// Trade is one immutable row in the append-only trade ledger
type Trade struct {
	TradeID     uuid.UUID       `json:"trade_id"`
	PortfolioID uuid.UUID       `json:"portfolio_id"`
	SymbolID    uuid.UUID       `json:"symbol_id"`
	TradedAt    time.Time       `json:"traded_at"`
	Side        Side            `json:"side"`
	OrderType   string          `json:"order_type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
}

// TotalValue is price × quantity
func (t Trade) TotalValue() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// TradeIntent is a planned trade that has not been executed yet. Quantity
// is always positive; direction lives in Side.
type TradeIntent struct {
	PortfolioID uuid.UUID       `json:"portfolio_id"`
	SymbolID    uuid.UUID       `json:"symbol_id"`
	Side        Side            `json:"side"`
	OrderType   string          `json:"order_type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
}

// Value is price × quantity
func (i TradeIntent) Value() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

// MarketClose returns 21:00 UTC (16:00 ET) on the given calendar day.
// Trades are stamped at close so historical replays are deterministic.
func MarketClose(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 21, 0, 0, 0, time.UTC)
}
