package valuation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/universe"
)

// ReplaySummary reports the outcome of one month's replay
type ReplaySummary struct {
	PortfolioID  uuid.UUID `json:"portfolio_id"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	DaysUpdated  int       `json:"days_updated"`
	TotalDays    int       `json:"total_days"`
	SkippedDates []string  `json:"skipped_dates"`
}

// Replayer walks every calendar day of a month in order, carrying state
// between days. Weekdays recompute total value from the position ledger
// and derive fresh metrics; weekends carry the prior day's values forward
// so the stat series has one row per calendar day.
type Replayer struct {
	positions *portfolio.PositionRepository
	stats     *portfolio.StatsRepository
	prices    *universe.PriceRepository
	calc      *Calculator
	log       zerolog.Logger
}

// NewReplayer creates a new valuation replayer
func NewReplayer(
	positions *portfolio.PositionRepository,
	stats *portfolio.StatsRepository,
	prices *universe.PriceRepository,
	calc *Calculator,
	log zerolog.Logger,
) *Replayer {
	return &Replayer{
		positions: positions,
		stats:     stats,
		prices:    prices,
		calc:      calc,
		log:       log.With().Str("service", "replay").Logger(),
	}
}

type carriedState struct {
	balance float64
	metrics Metrics
}

// ReplayMonth replays every calendar day of the month. Days without any
// position snapshot are skipped and listed in the summary; everything else
// is best effort per day.
func (r *Replayer) ReplayMonth(portfolioID uuid.UUID, year int, month time.Month) (*ReplaySummary, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)

	summary := &ReplaySummary{
		PortfolioID:  portfolioID,
		Year:         year,
		Month:        int(month),
		TotalDays:    int(next.Sub(first).Hours() / 24),
		SkippedDates: []string{},
	}

	// Carried state starts from the last stat before the month, if any
	var state *carriedState
	if prior, err := r.stats.LatestAtOrBefore(portfolioID, first.Add(-time.Nanosecond)); err != nil {
		return nil, err
	} else if prior != nil {
		state = &carriedState{
			balance: prior.PortfolioBalance,
			metrics: Metrics{
				Alpha:       prior.Alpha,
				Beta:        prior.Beta,
				SharpeRatio: prior.SharpeRatio,
				MaxDrawdown: prior.MaxDrawdown,
				StdDev:      prior.StdDev,
				Turnover:    prior.Turnover,
			},
		}
	}

	for day := first; day.Before(next); day = day.AddDate(0, 0, 1) {
		endOfDay := day.Add(24*time.Hour - time.Second)

		hasPositions, err := r.positions.HasAnyAsOf(portfolioID, endOfDay)
		if err != nil {
			return nil, err
		}
		if !hasPositions {
			summary.SkippedDates = append(summary.SkippedDates, day.Format(universe.DateFormat))
			continue
		}

		if isWeekend(day) {
			if state == nil {
				summary.SkippedDates = append(summary.SkippedDates, day.Format(universe.DateFormat))
				continue
			}
			if err := r.emitStat(portfolioID, day, state.balance, state.metrics); err != nil {
				return nil, err
			}
			summary.DaysUpdated++
			continue
		}

		balance, err := r.valueOn(portfolioID, day, endOfDay)
		if err != nil {
			return nil, err
		}

		metrics, err := r.calc.Compute(portfolioID, day, balance)
		if err != nil {
			return nil, err
		}

		if err := r.emitStat(portfolioID, day, balance, metrics); err != nil {
			return nil, err
		}
		state = &carriedState{balance: balance, metrics: metrics}
		summary.DaysUpdated++
	}

	r.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Int("year", year).
		Int("month", int(month)).
		Int("days_updated", summary.DaysUpdated).
		Int("skipped", len(summary.SkippedDates)).
		Msg("Month replayed")

	return summary, nil
}

// valueOn sums quantity × price over every held symbol. A missing price
// is logged and contributes zero rather than aborting the day.
func (r *Replayer) valueOn(portfolioID uuid.UUID, day, endOfDay time.Time) (float64, error) {
	snapshots, err := r.positions.LatestPositions(portfolioID, endOfDay)
	if err != nil {
		return 0, err
	}

	total := decimal.Zero
	for _, s := range snapshots {
		if s.Quantity.IsZero() {
			continue
		}

		price, found, err := r.prices.PriceOn(s.SymbolID, day)
		if err != nil {
			return 0, err
		}
		if !found {
			r.log.Warn().
				Str("symbol_id", s.SymbolID.String()).
				Str("date", day.Format(universe.DateFormat)).
				Msg("No price for held symbol, contributes zero")
			continue
		}

		total = total.Add(s.Quantity.Mul(decimal.NewFromFloat(price)))
	}

	return total.InexactFloat64(), nil
}

func (r *Replayer) emitStat(portfolioID uuid.UUID, day time.Time, balance float64, m Metrics) error {
	err := r.stats.Insert(portfolio.PortfolioStat{
		StatID:           uuid.New(),
		PortfolioID:      portfolioID,
		RecordedAt:       day,
		PortfolioBalance: balance,
		Alpha:            m.Alpha,
		Beta:             m.Beta,
		MaxDrawdown:      m.MaxDrawdown,
		SharpeRatio:      m.SharpeRatio,
		StdDev:           m.StdDev,
		Turnover:         m.Turnover,
	})
	if err != nil {
		return fmt.Errorf("failed to record stat for %s: %w", day.Format(universe.DateFormat), err)
	}
	return nil
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
