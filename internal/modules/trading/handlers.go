package trading

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/events"
	"github.com/finnhq/finn-trader/internal/modules/universe"
)

// Handlers provides HTTP handlers for trading endpoints
type Handlers struct {
	planner  *Planner
	executor *Executor
	trades   *TradeRepository
	events   *events.Manager
	log      zerolog.Logger
}

// NewHandlers creates a new trading handlers instance
func NewHandlers(planner *Planner, executor *Executor, trades *TradeRepository, ev *events.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		planner:  planner,
		executor: executor,
		trades:   trades,
		events:   ev,
		log:      log.With().Str("module", "trading_handlers").Logger(),
	}
}

// RegisterRoutes registers all trading routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Post("/execute-full", h.ExecuteFull)
		r.Get("/{portfolioID}", h.ListTrades)
	})
}

// ExecuteFullRequest is the request body for a full plan-and-execute
// rebalance
type ExecuteFullRequest struct {
	AllocationBatchID string `json:"allocation_batch_id"`
}

// ExecuteFull plans the trades for an allocation batch and executes them
func (h *Handlers) ExecuteFull(w http.ResponseWriter, r *http.Request) {
	var req ExecuteFullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	batchID, err := uuid.Parse(req.AllocationBatchID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid allocation_batch_id")
		return
	}

	plan, err := h.planner.Plan(batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID.String()).Msg("Failed to plan rebalance")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executed, err := h.executor.Execute(plan.Intents, plan.TradeDate)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID.String()).Msg("Failed to execute trades")
		h.events.EmitError("trading", err, map[string]interface{}{
			"portfolio_id": plan.PortfolioID.String(),
			"batch_id":     batchID.String(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.events.Emit(events.TradesExecuted, "trading", map[string]interface{}{
		"portfolio_id": plan.PortfolioID.String(),
		"batch_id":     batchID.String(),
		"trades":       len(executed),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                    "success",
		"message":                   fmt.Sprintf("Executed %d trades", len(executed)),
		"portfolio_id":              plan.PortfolioID.String(),
		"allocation_batch_id":       batchID.String(),
		"initial_portfolio_balance": plan.TotalValue,
		"trade_date":                plan.TradeDate.Format(universe.DateFormat),
		"executed_trades":           executed,
	})
}

// ListTrades returns a portfolio's trade history
func (h *Handlers) ListTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio id")
		return
	}

	trades, err := h.trades.ListByPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list trades")
		writeError(w, http.StatusInternalServerError, "Failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"trades": trades,
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
