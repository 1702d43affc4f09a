package valuation

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/modules/portfolio"
	"github.com/finnhq/finn-trader/internal/modules/trading"
	"github.com/finnhq/finn-trader/internal/modules/universe"
	"github.com/finnhq/finn-trader/pkg/formulas"
)

// tradingDaysPerYear is the factor used to annualize daily Sharpe ratios
const tradingDaysPerYear = 252

// Metrics is one day's derived performance statistics
type Metrics struct {
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	StdDev      float64 `json:"std_dev"`
	Turnover    float64 `json:"turnover"`
}

// CalculatorConfig carries the tunable windows and rates
type CalculatorConfig struct {
	MetricsLookbackDays  int
	TurnoverLookbackDays int
	RiskFreeRate         float64
	BenchmarkSymbol      string
}

// Calculator derives performance metrics from the stat history, the trade
// ledger and a benchmark price series. Insufficient history is a valid
// state that yields all-zero metrics, never an error; each statistic is
// independently zeroed when its own computation yields NaN or infinity.
type Calculator struct {
	stats   *portfolio.StatsRepository
	trades  *trading.TradeRepository
	symbols *universe.SymbolRepository
	prices  *universe.PriceRepository
	cfg     CalculatorConfig
	log     zerolog.Logger
}

// NewCalculator creates a new metrics calculator
func NewCalculator(
	stats *portfolio.StatsRepository,
	trades *trading.TradeRepository,
	symbols *universe.SymbolRepository,
	prices *universe.PriceRepository,
	cfg CalculatorConfig,
	log zerolog.Logger,
) *Calculator {
	return &Calculator{
		stats:   stats,
		trades:  trades,
		symbols: symbols,
		prices:  prices,
		cfg:     cfg,
		log:     log.With().Str("service", "metrics").Logger(),
	}
}

// Compute derives the metrics for a day whose recomputed balance is not in
// the stat store yet. The trailing window of stored stats is extended with
// (asOf, balance) as its final point.
func (c *Calculator) Compute(portfolioID uuid.UUID, asOf time.Time, balance float64) (Metrics, error) {
	from := asOf.AddDate(0, 0, -c.cfg.MetricsLookbackDays)

	history, err := c.stats.RangeBetween(portfolioID, from, asOf.Add(-time.Nanosecond))
	if err != nil {
		return Metrics{}, err
	}

	// One point per calendar day; replays append rather than update, so a
	// date may carry several identical rows and the last one wins
	byDate := make(map[string]float64, len(history)+1)
	var dates []string
	for _, s := range history {
		date := s.RecordedAt.Format(universe.DateFormat)
		if _, seen := byDate[date]; !seen {
			dates = append(dates, date)
		}
		byDate[date] = s.PortfolioBalance
	}
	today := asOf.Format(universe.DateFormat)
	if _, seen := byDate[today]; !seen {
		dates = append(dates, today)
	}
	byDate[today] = balance

	if len(dates) < 2 {
		return Metrics{}, nil
	}

	balances := make([]float64, len(dates))
	for i, date := range dates {
		balances[i] = byDate[date]
	}

	returns := formulas.CalculateReturns(balances)

	var m Metrics
	m.StdDev = formulas.ZeroIfNotFinite(formulas.StdDev(returns))

	if sharpe := formulas.CalculateSharpeRatio(returns, c.cfg.RiskFreeRate, tradingDaysPerYear); sharpe != nil {
		m.SharpeRatio = formulas.ZeroIfNotFinite(*sharpe)
	}

	if dd := formulas.CalculateMaxDrawdown(balances); dd != nil {
		m.MaxDrawdown = formulas.ZeroIfNotFinite(*dd)
	}

	m.Alpha, m.Beta = c.alphaBeta(balances, dates, from, asOf)

	turnover, err := c.Turnover(portfolioID, asOf)
	if err != nil {
		return Metrics{}, err
	}
	m.Turnover = turnover

	return m, nil
}

// alphaBeta regresses portfolio returns against the benchmark over dates
// where both series have a point. Missing benchmark data degrades to
// alpha = beta = 0 without touching the other statistics.
func (c *Calculator) alphaBeta(balances []float64, dates []string, from, to time.Time) (alpha, beta float64) {
	bench, err := c.symbols.GetByTicker(c.cfg.BenchmarkSymbol)
	if err != nil || bench == nil {
		c.log.Warn().Str("symbol", c.cfg.BenchmarkSymbol).Msg("Benchmark symbol unavailable, alpha/beta zeroed")
		return 0, 0
	}

	series, err := c.prices.SeriesInRange(bench.SymbolID, from, to)
	if err != nil {
		c.log.Warn().Err(err).Msg("Benchmark price series unavailable, alpha/beta zeroed")
		return 0, 0
	}

	// Inner join by date
	var alignedBalances, alignedPrices []float64
	for i, date := range dates {
		price, ok := series[date]
		if !ok {
			continue
		}
		alignedBalances = append(alignedBalances, balances[i])
		alignedPrices = append(alignedPrices, price)
	}

	portReturns, benchReturns := alignedReturns(alignedBalances, alignedPrices)
	if len(portReturns) < 2 {
		return 0, 0
	}

	a, b := formulas.CalculateAlphaBeta(portReturns, benchReturns)
	if a == nil || b == nil {
		return 0, 0
	}

	return formulas.Round(*a, 3), formulas.Round(*b, 3)
}

// alignedReturns computes day-over-day returns for two parallel series,
// dropping a day from both when either return is undefined so the pairing
// survives
func alignedReturns(a, b []float64) (ra, rb []float64) {
	for i := 1; i < len(a) && i < len(b); i++ {
		if a[i-1] == 0 || b[i-1] == 0 {
			continue
		}
		r1 := (a[i] - a[i-1]) / a[i-1]
		r2 := (b[i] - b[i-1]) / b[i-1]
		if !formulas.IsFinite(r1) || !formulas.IsFinite(r2) {
			continue
		}
		ra = append(ra, r1)
		rb = append(rb, r2)
	}
	return ra, rb
}

// Turnover is the annualized ratio of traded value to average balance over
// the turnover window. Zero trades or zero balance yield exactly 0; the
// result is never negative and deliberately not capped at 1.
func (c *Calculator) Turnover(portfolioID uuid.UUID, asOf time.Time) (float64, error) {
	window := c.cfg.TurnoverLookbackDays
	from := asOf.AddDate(0, 0, -window)

	buyValue, sellValue, err := c.trades.TradedValueInWindow(portfolioID, from, asOf)
	if err != nil {
		return 0, err
	}

	traded := buyValue
	if sellValue.GreaterThan(traded) {
		traded = sellValue
	}
	if !traded.IsPositive() {
		return 0, nil
	}

	avgBalance, err := c.stats.AverageBalance(portfolioID, from, asOf)
	if err != nil {
		return 0, err
	}
	if avgBalance <= 0 {
		return 0, nil
	}

	turnover := traded.InexactFloat64() / avgBalance * (365.0 / float64(window))
	if turnover < 0 {
		return 0, nil
	}

	return formulas.ZeroIfNotFinite(turnover), nil
}
