package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finnhq/finn-trader/internal/modules/portfolio"
)

// Executor applies planned trades atomically: one trade row per intent,
// then exactly one new position snapshot per affected symbol. Either every
// write commits or none does.
type Executor struct {
	db        *sql.DB
	trades    *TradeRepository
	positions *portfolio.PositionRepository
	log       zerolog.Logger
}

// NewExecutor creates a new trade executor
func NewExecutor(db *sql.DB, trades *TradeRepository, positions *portfolio.PositionRepository, log zerolog.Logger) *Executor {
	return &Executor{
		db:        db,
		trades:    trades,
		positions: positions,
		log:       log.With().Str("service", "executor").Logger(),
	}
}

// Execute records all intents as trades stamped at market close on
// tradeDate and writes the resulting position snapshots
func (e *Executor) Execute(intents []TradeIntent, tradeDate time.Time) ([]Trade, error) {
	if len(intents) == 0 {
		return nil, nil
	}

	portfolioID := intents[0].PortfolioID
	closeAt := MarketClose(tradeDate)

	// Net per-symbol deltas; order of first appearance kept for
	// deterministic snapshot writes
	deltas := make(map[uuid.UUID]decimal.Decimal, len(intents))
	var order []uuid.UUID
	for _, intent := range intents {
		change := intent.Quantity
		if intent.Side == SideSell {
			change = change.Neg()
		}
		if _, seen := deltas[intent.SymbolID]; !seen {
			order = append(order, intent.SymbolID)
		}
		deltas[intent.SymbolID] = deltas[intent.SymbolID].Add(change)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	executed := make([]Trade, 0, len(intents))
	for _, intent := range intents {
		trade := Trade{
			TradeID:     uuid.New(),
			PortfolioID: intent.PortfolioID,
			SymbolID:    intent.SymbolID,
			TradedAt:    closeAt,
			Side:        intent.Side,
			OrderType:   intent.OrderType,
			Price:       intent.Price,
			Quantity:    intent.Quantity,
			Reason:      intent.Reason,
		}
		if err := e.trades.InsertTx(tx, trade); err != nil {
			return nil, err
		}
		executed = append(executed, trade)
	}

	for _, symbolID := range order {
		prior, err := e.positions.LatestQuantity(portfolioID, symbolID, closeAt)
		if err != nil {
			return nil, err
		}

		current := decimal.Zero
		if prior != nil {
			current = *prior
		}
		newQty := current.Add(deltas[symbolID])

		switch {
		case newQty.IsPositive():
			// keep newQty
		case prior != nil:
			// Explicit zero snapshot records the close; omitting the
			// symbol would leave the stale quantity authoritative
			newQty = decimal.Zero
		default:
			e.log.Warn().
				Str("symbol_id", symbolID.String()).
				Msg("Trade nets to nothing for a symbol never held, no snapshot written")
			continue
		}

		snapshot := portfolio.PositionSnapshot{
			PositionID:  uuid.New(),
			PortfolioID: portfolioID,
			SymbolID:    symbolID,
			Quantity:    newQty,
			RecordedAt:  closeAt,
		}
		if err := e.positions.InsertTx(tx, snapshot); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trade execution: %w", err)
	}

	e.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Int("trades", len(executed)).
		Time("traded_at", closeAt).
		Msg("Trades executed")

	return executed, nil
}
