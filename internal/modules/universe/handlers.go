package universe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/events"
)

// Handlers provides HTTP handlers for symbol, sector and price endpoints
type Handlers struct {
	symbols *SymbolRepository
	prices  *PriceRepository
	service *PriceService
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandlers creates a new universe handlers instance
func NewHandlers(symbols *SymbolRepository, prices *PriceRepository, service *PriceService, ev *events.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		symbols: symbols,
		prices:  prices,
		service: service,
		events:  ev,
		log:     log.With().Str("module", "universe_handlers").Logger(),
	}
}

// RegisterRoutes registers all universe routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/symbols", func(r chi.Router) {
		r.Post("/", h.CreateSymbol)
		r.Get("/", h.ListSymbols)
	})
	r.Post("/sectors", h.CreateSector)
	r.Post("/symbol-sectors", h.LinkSymbolSector)
	r.Route("/prices", func(r chi.Router) {
		r.Post("/import", h.ImportPrices)
		r.Get("/{ticker}", h.GetPrice)
	})
}

// CreateSymbolRequest is the request body for creating a symbol
type CreateSymbolRequest struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
}

// CreateSymbol creates a new symbol
func (h *Handlers) CreateSymbol(w http.ResponseWriter, r *http.Request) {
	var req CreateSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	existing, err := h.symbols.GetByTicker(req.Symbol)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check symbol")
		writeError(w, http.StatusInternalServerError, "Failed to create symbol")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Symbol %s already exists", existing.Symbol))
		return
	}

	sym, err := h.symbols.Create(req.Symbol, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create symbol")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"symbol": sym,
	})
}

// ListSymbols lists all symbols
func (h *Handlers) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.symbols.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		writeError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"symbols": symbols,
	})
}

// CreateSectorRequest is the request body for creating a sector
type CreateSectorRequest struct {
	Name string `json:"name"`
}

// CreateSector creates a new sector
func (h *Handlers) CreateSector(w http.ResponseWriter, r *http.Request) {
	var req CreateSectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sector, err := h.symbols.CreateSector(req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create sector")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"sector": sector,
	})
}

// LinkSymbolSectorRequest is the request body for linking a symbol to a sector
type LinkSymbolSectorRequest struct {
	SymbolID string `json:"symbol_id"`
	SectorID string `json:"sector_id"`
}

// LinkSymbolSector associates a symbol with a sector
func (h *Handlers) LinkSymbolSector(w http.ResponseWriter, r *http.Request) {
	var req LinkSymbolSectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	symbolID, err := uuid.Parse(req.SymbolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid symbol_id")
		return
	}
	sectorID, err := uuid.Parse(req.SectorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sector_id")
		return
	}

	if err := h.symbols.LinkSymbolSector(symbolID, sectorID); err != nil {
		h.log.Error().Err(err).Msg("Failed to link symbol to sector")
		writeError(w, http.StatusInternalServerError, "Failed to link symbol to sector")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// ImportPricesRequest is the request body for a bulk price import
type ImportPricesRequest struct {
	Prices []struct {
		Symbol  string  `json:"symbol"`
		PriceAt string  `json:"price_at"`
		Price   float64 `json:"price"`
	} `json:"prices"`
}

// ImportPrices bulk-imports daily price points
func (h *Handlers) ImportPrices(w http.ResponseWriter, r *http.Request) {
	var req ImportPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Prices) == 0 {
		writeError(w, http.StatusBadRequest, "No prices provided")
		return
	}

	var points []SymbolPrice
	for _, p := range req.Prices {
		sym, err := h.symbols.GetByTicker(p.Symbol)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to resolve symbol")
			writeError(w, http.StatusInternalServerError, "Failed to import prices")
			return
		}
		if sym == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Symbol %s not found", p.Symbol))
			return
		}
		if _, err := time.Parse(DateFormat, p.PriceAt); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid price_at date: %s", p.PriceAt))
			return
		}
		points = append(points, SymbolPrice{SymbolID: sym.SymbolID, PriceAt: p.PriceAt, Price: p.Price})
	}

	imported, err := h.prices.BulkImport(points)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to import prices")
		writeError(w, http.StatusInternalServerError, "Failed to import prices")
		return
	}

	h.events.Emit(events.PricesImported, "universe", map[string]interface{}{"count": imported})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"imported": imported,
	})
}

// GetPrice returns the price for a ticker on a date (default today),
// applying the carry-back fallback
func (h *Handlers) GetPrice(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	day := time.Now().UTC()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse(DateFormat, dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	price, found, err := h.service.EnsurePrice(ticker, day)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get price")
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No price for %s on or before %s", ticker, day.Format(DateFormat)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"symbol": ticker,
		"date":   day.Format(DateFormat),
		"price":  price,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
