package allocation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finnhq/finn-trader/internal/events"
)

// Handlers provides HTTP handlers for allocation endpoints
type Handlers struct {
	service *Service
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandlers creates a new allocation handlers instance
func NewHandlers(service *Service, ev *events.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		events:  ev,
		log:     log.With().Str("module", "allocation_handlers").Logger(),
	}
}

// RegisterRoutes registers all allocation routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/allocations", h.CreateBatch)
	r.Get("/portfolios/{portfolioID}/allocations", h.GetByPortfolio)
}

// CreateBatchRequest is the request body for creating an allocation batch
type CreateBatchRequest struct {
	PortfolioID string             `json:"portfolio_id"`
	Date        string             `json:"date"`
	Allocations map[string]float64 `json:"allocations"`
}

// CreateBatch validates and stores a new allocation batch
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	portfolioID, err := uuid.Parse(req.PortfolioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio_id")
		return
	}

	batchID, err := h.service.CreateBatch(portfolioID, req.Date, req.Allocations)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create allocation batch")
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create allocation batch")
		return
	}

	h.events.Emit(events.AllocationBatchCreated, "allocation", map[string]interface{}{
		"portfolio_id": portfolioID.String(),
		"batch_id":     batchID.String(),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "success",
		"allocation_batch_id": batchID.String(),
	})
}

// GetByPortfolio returns a portfolio's allocations grouped by batch
func (h *Handlers) GetByPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio id")
		return
	}

	batches, err := h.service.BatchesByPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get allocations")
		writeError(w, http.StatusInternalServerError, "Failed to get allocations")
		return
	}
	if len(batches) == 0 {
		writeError(w, http.StatusNotFound, "No allocations found for portfolio")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"batches": batches,
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
