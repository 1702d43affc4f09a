package valuation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/modules/portfolio"
)

// RefreshJob replays the current month for every portfolio. Scheduled
// daily so stat rows stay current without manual replays.
type RefreshJob struct {
	portfolios *portfolio.PortfolioRepository
	replayer   *Replayer
	log        zerolog.Logger
}

// NewRefreshJob creates the daily valuation refresh job
func NewRefreshJob(portfolios *portfolio.PortfolioRepository, replayer *Replayer, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		portfolios: portfolios,
		replayer:   replayer,
		log:        log.With().Str("job", "valuation_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "valuation_refresh"
}

// Run replays the current month for every portfolio, best effort per
// portfolio
func (j *RefreshJob) Run() error {
	portfolios, err := j.portfolios.List()
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	now := time.Now().UTC()
	var failed int
	for _, p := range portfolios {
		summary, err := j.replayer.ReplayMonth(p.PortfolioID, now.Year(), now.Month())
		if err != nil {
			failed++
			j.log.Error().Err(err).Str("portfolio_id", p.PortfolioID.String()).Msg("Refresh failed for portfolio")
			continue
		}
		j.log.Info().
			Str("portfolio_id", p.PortfolioID.String()).
			Int("days_updated", summary.DaysUpdated).
			Msg("Portfolio valuations refreshed")
	}

	if failed > 0 {
		return fmt.Errorf("valuation refresh failed for %d of %d portfolios", failed, len(portfolios))
	}

	return nil
}
