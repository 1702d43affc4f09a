package backtest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/events"
)

// Handlers provides HTTP handlers for backtest endpoints
type Handlers struct {
	orchestrator *Orchestrator
	events       *events.Manager
	log          zerolog.Logger
}

// NewHandlers creates a new backtest handlers instance
func NewHandlers(orchestrator *Orchestrator, ev *events.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		events:       ev,
		log:          log.With().Str("module", "backtest_handlers").Logger(),
	}
}

// RegisterRoutes registers all backtest routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/backtest", h.Run)
}

// RunRequest is the request body for a backtest run
type RunRequest struct {
	PortfolioID     string   `json:"portfolio_id"`
	AllocationDates []string `json:"allocation_dates"`
	StartMonth      int      `json:"start_month"`
}

// Run seeds the portfolio and runs the monthly replay-and-rebalance loop.
// A failing month halts the run; earlier months stay committed and are
// returned with per-month status.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	portfolioID, err := uuid.Parse(req.PortfolioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio_id")
		return
	}
	if len(req.AllocationDates) == 0 {
		writeError(w, http.StatusBadRequest, "No allocation dates provided")
		return
	}
	startMonth := req.StartMonth
	if startMonth == 0 {
		startMonth = 1
	}
	if startMonth < 1 || startMonth > 12 {
		writeError(w, http.StatusBadRequest, "start_month must be between 1 and 12")
		return
	}

	results := h.orchestrator.Run(portfolioID, req.AllocationDates, startMonth)

	h.events.Emit(events.BacktestCompleted, "backtest", map[string]interface{}{
		"portfolio_id": portfolioID.String(),
		"months":       len(results),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"results": results,
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
