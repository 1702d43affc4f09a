package universe

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/clients/alpaca"
)

// BarFetcher fetches a daily bar from an external market data provider
type BarFetcher interface {
	GetDailyBar(ticker string, day time.Time) (*alpaca.Bar, error)
}

// PriceService resolves daily prices, filling gaps from the external
// price source when credentials are configured
type PriceService struct {
	symbols *SymbolRepository
	prices  *PriceRepository
	fetcher BarFetcher
	log     zerolog.Logger
}

// NewPriceService creates a new price service. fetcher may be nil when no
// external source is configured; lookups then rely on imported prices only.
func NewPriceService(symbols *SymbolRepository, prices *PriceRepository, fetcher BarFetcher, log zerolog.Logger) *PriceService {
	return &PriceService{
		symbols: symbols,
		prices:  prices,
		fetcher: fetcher,
		log:     log.With().Str("service", "prices").Logger(),
	}
}

// EnsurePrice returns the price for a ticker on a day, fetching and storing
// it from the external source when the local store has no point at or
// before the day
func (s *PriceService) EnsurePrice(ticker string, day time.Time) (float64, bool, error) {
	sym, err := s.symbols.GetByTicker(ticker)
	if err != nil {
		return 0, false, err
	}
	if sym == nil {
		return 0, false, fmt.Errorf("symbol %s not found", ticker)
	}

	price, found, err := s.prices.PriceOn(sym.SymbolID, day)
	if err != nil {
		return 0, false, err
	}
	if found {
		return price, true, nil
	}

	if s.fetcher == nil {
		return 0, false, nil
	}

	bar, err := s.fetcher.GetDailyBar(ticker, day)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("External price fetch failed")
		return 0, false, nil
	}
	if bar == nil {
		return 0, false, nil
	}

	if err := s.prices.Upsert(sym.SymbolID, day, bar.Close); err != nil {
		return 0, false, err
	}

	return bar.Close, true, nil
}
