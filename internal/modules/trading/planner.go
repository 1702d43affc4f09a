package trading

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finnhq/finn-trader/internal/modules/allocation"
	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/universe"
)

// Planner turns an allocation batch into concrete trade intents.
//
// The planned sells and buys generally do not net to zero; the residual is
// routed through a money-market buy at price 1 so total portfolio value is
// conserved across the rebalance.
type Planner struct {
	allocations *allocation.Repository
	positions   *portfolio.PositionRepository
	stats       *portfolio.StatsRepository
	symbols     *universe.SymbolRepository
	prices      *universe.PriceRepository
	log         zerolog.Logger
}

// NewPlanner creates a new trade planner
func NewPlanner(
	allocations *allocation.Repository,
	positions *portfolio.PositionRepository,
	stats *portfolio.StatsRepository,
	symbols *universe.SymbolRepository,
	prices *universe.PriceRepository,
	log zerolog.Logger,
) *Planner {
	return &Planner{
		allocations: allocations,
		positions:   positions,
		stats:       stats,
		symbols:     symbols,
		prices:      prices,
		log:         log.With().Str("service", "planner").Logger(),
	}
}

// PlanResult is the full output of one planning run
type PlanResult struct {
	PortfolioID uuid.UUID     `json:"portfolio_id"`
	BatchID     uuid.UUID     `json:"allocation_batch_id"`
	TradeDate   time.Time     `json:"trade_date"`
	TotalValue  float64       `json:"total_value"`
	Intents     []TradeIntent `json:"intents"`
}

type plannedTarget struct {
	symbolID uuid.UUID
	price    decimal.Decimal
	target   decimal.Decimal
	current  decimal.Decimal
}

// Plan computes the trades needed to move a portfolio from its current
// positions to the batch's target weights.
func (p *Planner) Plan(batchID uuid.UUID) (*PlanResult, error) {
	allocs, err := p.allocations.GetByBatch(batchID)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, fmt.Errorf("no allocations found for batch %s", batchID)
	}

	portfolioID := allocs[0].PortfolioID
	tradeDate := allocs[0].AllocatedAt
	asOf := time.Date(tradeDate.Year(), tradeDate.Month(), tradeDate.Day(), 23, 59, 59, 0, time.UTC)

	stat, err := p.stats.LatestAtOrBefore(portfolioID, asOf)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		return nil, fmt.Errorf("no portfolio stats found for portfolio %s", portfolioID)
	}
	totalValue := stat.PortfolioBalance
	if totalValue <= 0 {
		return nil, fmt.Errorf("invalid portfolio balance: $%.2f", totalValue)
	}

	snapshots, err := p.positions.LatestPositions(portfolioID, asOf)
	if err != nil {
		return nil, err
	}

	held := make(map[uuid.UUID]decimal.Decimal, len(snapshots))
	heldOrder := make([]uuid.UUID, 0, len(snapshots))
	for _, s := range snapshots {
		held[s.SymbolID] = s.Quantity
		heldOrder = append(heldOrder, s.SymbolID)
	}

	// Target quantities per allocated symbol. Zero or missing prices skip
	// the symbol rather than aborting the batch.
	totalValueDec := decimal.NewFromFloat(totalValue)
	targets := make(map[uuid.UUID]plannedTarget, len(allocs))
	targetOrder := make([]uuid.UUID, 0, len(allocs))
	for _, a := range allocs {
		price, found, err := p.prices.PriceOn(a.SymbolID, tradeDate)
		if err != nil {
			return nil, err
		}
		if !found || price == 0 {
			p.log.Warn().
				Str("symbol_id", a.SymbolID.String()).
				Str("date", tradeDate.Format(universe.DateFormat)).
				Msg("Skipping allocation with zero or missing price")
			continue
		}

		priceDec := decimal.NewFromFloat(price)
		targetValue := totalValueDec.Mul(decimal.NewFromFloat(a.AllocationPct))
		targetQty := targetValue.Div(priceDec).Round(QuantityPrecision)

		targets[a.SymbolID] = plannedTarget{
			symbolID: a.SymbolID,
			price:    priceDec,
			target:   targetQty,
			current:  held[a.SymbolID],
		}
		targetOrder = append(targetOrder, a.SymbolID)
	}

	var intents []TradeIntent
	sellValue, buyValue := decimal.Zero, decimal.Zero

	// Sells: full liquidation of anything not in the batch, then trims of
	// allocated symbols held above target
	for _, symbolID := range heldOrder {
		current := held[symbolID]
		if !current.IsPositive() {
			continue
		}

		if target, ok := targets[symbolID]; ok {
			if current.GreaterThan(target.target) {
				excess := current.Sub(target.target)
				intents = append(intents, TradeIntent{
					PortfolioID: portfolioID,
					SymbolID:    symbolID,
					Side:        SideSell,
					OrderType:   OrderTypeMarket,
					Price:       target.price,
					Quantity:    excess,
					Reason:      ReasonRebalancing,
				})
				sellValue = sellValue.Add(target.price.Mul(excess))
			}
			continue
		}

		price, found, err := p.prices.PriceOn(symbolID, tradeDate)
		if err != nil {
			return nil, err
		}
		if !found {
			p.log.Warn().
				Str("symbol_id", symbolID.String()).
				Str("date", tradeDate.Format(universe.DateFormat)).
				Msg("Skipping liquidation with missing price")
			continue
		}

		priceDec := decimal.NewFromFloat(price)
		intents = append(intents, TradeIntent{
			PortfolioID: portfolioID,
			SymbolID:    symbolID,
			Side:        SideSell,
			OrderType:   OrderTypeMarket,
			Price:       priceDec,
			Quantity:    current,
			Reason:      ReasonRebalancing,
		})
		sellValue = sellValue.Add(priceDec.Mul(current))
	}

	// Buys: top up allocated symbols below target, dropping sub-noise
	// deficits
	for _, symbolID := range targetOrder {
		target := targets[symbolID]
		if target.current.GreaterThanOrEqual(target.target) {
			continue
		}

		deficit := target.target.Sub(target.current)
		if deficit.LessThan(MinTradeQuantity) {
			continue
		}

		intents = append(intents, TradeIntent{
			PortfolioID: portfolioID,
			SymbolID:    symbolID,
			Side:        SideBuy,
			OrderType:   OrderTypeMarket,
			Price:       target.price,
			Quantity:    deficit,
			Reason:      ReasonRebalancing,
		})
		buyValue = buyValue.Add(target.price.Mul(deficit))
	}

	// Residual proceeds park in the money-market instrument at 1:1,
	// conserving total portfolio value across the rebalance
	residual := sellValue.Sub(buyValue)
	if residual.IsPositive() {
		cash, err := p.symbols.EnsureMoneyMarket()
		if err != nil {
			return nil, err
		}

		intents = append(intents, TradeIntent{
			PortfolioID: portfolioID,
			SymbolID:    cash.SymbolID,
			Side:        SideBuy,
			OrderType:   OrderTypeMarket,
			Price:       decimal.New(1, 0),
			Quantity:    residual,
			Reason:      ReasonBalanceAdjustment,
		})
	}

	p.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Str("batch_id", batchID.String()).
		Int("intents", len(intents)).
		Str("sell_value", sellValue.StringFixed(2)).
		Str("buy_value", buyValue.StringFixed(2)).
		Msg("Rebalance planned")

	return &PlanResult{
		PortfolioID: portfolioID,
		BatchID:     batchID,
		TradeDate:   tradeDate,
		TotalValue:  totalValue,
		Intents:     intents,
	}, nil
}
