package valuation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/events"
)

// Handlers provides HTTP handlers for valuation endpoints
type Handlers struct {
	replayer *Replayer
	events   *events.Manager
	log      zerolog.Logger
}

// NewHandlers creates a new valuation handlers instance
func NewHandlers(replayer *Replayer, ev *events.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		replayer: replayer,
		events:   ev,
		log:      log.With().Str("module", "valuation_handlers").Logger(),
	}
}

// RegisterRoutes registers all valuation routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/valuation/replay", h.Replay)
}

// ReplayRequest is the request body for a month replay
type ReplayRequest struct {
	PortfolioID string `json:"portfolio_id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
}

// Replay replays one month of valuations for a portfolio
func (h *Handlers) Replay(w http.ResponseWriter, r *http.Request) {
	var req ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	portfolioID, err := uuid.Parse(req.PortfolioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio_id")
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "Month must be between 1 and 12")
		return
	}
	if req.Year < 1970 {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	summary, err := h.replayer.ReplayMonth(portfolioID, req.Year, time.Month(req.Month))
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", req.PortfolioID).Msg("Failed to replay month")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.events.Emit(events.MonthReplayed, "valuation", map[string]interface{}{
		"portfolio_id": portfolioID.String(),
		"year":         req.Year,
		"month":        req.Month,
		"days_updated": summary.DaysUpdated,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"portfolio_id":  portfolioID.String(),
		"year":          summary.Year,
		"month":         summary.Month,
		"days_updated":  summary.DaysUpdated,
		"total_days":    summary.TotalDays,
		"skipped_dates": summary.SkippedDates,
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
