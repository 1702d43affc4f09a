package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradeRepository handles the append-only trade ledger
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

const tradeColumns = "trade_id, portfolio_id, symbol_id, traded_at, side, order_type, price, quantity, reason"

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Insert appends a trade row
func (r *TradeRepository) Insert(trade Trade) error {
	return r.insert(r.db, trade)
}

// InsertTx appends a trade row within an existing transaction
func (r *TradeRepository) InsertTx(tx *sql.Tx, trade Trade) error {
	return r.insert(tx, trade)
}

func (r *TradeRepository) insert(db execer, trade Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		trade.TradeID.String(),
		trade.PortfolioID.String(),
		trade.SymbolID.String(),
		trade.TradedAt.UTC().Format(time.RFC3339),
		string(trade.Side),
		trade.OrderType,
		trade.Price.String(),
		trade.Quantity.String(),
		trade.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	return nil
}

// ListByPortfolio returns the full trade history, oldest first
func (r *TradeRepository) ListByPortfolio(portfolioID uuid.UUID) ([]Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades
		WHERE portfolio_id = ?
		ORDER BY traded_at ASC
	`

	return r.queryTrades(query, portfolioID.String())
}

// ListInWindow returns trades within [from, to] inclusive, oldest first
func (r *TradeRepository) ListInWindow(portfolioID uuid.UUID, from, to time.Time) ([]Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades
		WHERE portfolio_id = ? AND traded_at >= ? AND traded_at <= ?
		ORDER BY traded_at ASC
	`

	return r.queryTrades(query,
		portfolioID.String(),
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
}

// TradedValueInWindow sums buy value and sell value independently over
// [from, to]. Values are summed in decimal to avoid drift.
func (r *TradeRepository) TradedValueInWindow(portfolioID uuid.UUID, from, to time.Time) (buyValue, sellValue decimal.Decimal, err error) {
	trades, err := r.ListInWindow(portfolioID, from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	buyValue, sellValue = decimal.Zero, decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case SideBuy:
			buyValue = buyValue.Add(t.TotalValue())
		case SideSell:
			sellValue = sellValue.Add(t.TotalValue())
		}
	}

	return buyValue, sellValue, nil
}

// DeleteForPortfolioTx removes every trade for a portfolio. Used only by
// the backtest seeder's destructive reset.
func (r *TradeRepository) DeleteForPortfolioTx(tx *sql.Tx, portfolioID uuid.UUID) error {
	result, err := tx.Exec("DELETE FROM trades WHERE portfolio_id = ?", portfolioID.String())
	if err != nil {
		return fmt.Errorf("failed to delete trades: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Warn().
		Str("portfolio_id", portfolioID.String()).
		Int64("rows_affected", rowsAffected).
		Msg("Trade ledger cleared")

	return nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var (
		trade                          Trade
		tradeID, portfolioID, symbolID string
		tradedAt, side                 string
		price, quantity                string
	)

	err := rows.Scan(&tradeID, &portfolioID, &symbolID, &tradedAt, &side, &trade.OrderType, &price, &quantity, &trade.Reason)
	if err != nil {
		return trade, err
	}

	if trade.TradeID, err = uuid.Parse(tradeID); err != nil {
		return trade, fmt.Errorf("failed to parse trade id: %w", err)
	}
	if trade.PortfolioID, err = uuid.Parse(portfolioID); err != nil {
		return trade, fmt.Errorf("failed to parse portfolio id: %w", err)
	}
	if trade.SymbolID, err = uuid.Parse(symbolID); err != nil {
		return trade, fmt.Errorf("failed to parse symbol id: %w", err)
	}
	if trade.TradedAt, err = time.Parse(time.RFC3339, tradedAt); err != nil {
		return trade, fmt.Errorf("failed to parse traded_at: %w", err)
	}
	if trade.Price, err = decimal.NewFromString(price); err != nil {
		return trade, fmt.Errorf("failed to parse price %q: %w", price, err)
	}
	if trade.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return trade, fmt.Errorf("failed to parse quantity %q: %w", quantity, err)
	}
	trade.Side = Side(side)

	return trade, nil
}
