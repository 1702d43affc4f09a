package portfolio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handlers provides HTTP handlers for user and portfolio endpoints
type Handlers struct {
	users      *UserRepository
	portfolios *PortfolioRepository
	positions  *PositionRepository
	stats      *StatsRepository
	log        zerolog.Logger
}

// NewHandlers creates a new portfolio handlers instance
func NewHandlers(users *UserRepository, portfolios *PortfolioRepository, positions *PositionRepository, stats *StatsRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		users:      users,
		portfolios: portfolios,
		positions:  positions,
		stats:      stats,
		log:        log.With().Str("module", "portfolio_handlers").Logger(),
	}
}

// RegisterRoutes registers all user and portfolio routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
	})
	r.Route("/portfolios", func(r chi.Router) {
		r.Post("/", h.CreatePortfolio)
		r.Get("/", h.ListPortfolios)
		r.Get("/{portfolioID}", h.GetPortfolio)
		r.Get("/{portfolioID}/positions", h.GetPositions)
		r.Get("/{portfolioID}/stats", h.GetStats)
	})
}

// CreateUserRequest is the request body for creating a user
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CreateUser creates a new user
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("User %s already exists", req.Email))
		return
	}

	user, err := h.users.Create(req.Email, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"user":   user,
	})
}

// ListUsers lists all users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users")
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"users":  users,
	})
}

// CreatePortfolioRequest is the request body for creating a portfolio
type CreatePortfolioRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// CreatePortfolio creates a new portfolio with a zeroed opening stat row so
// the valuation history has a well-defined starting point
func (h *Handlers) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check user")
		writeError(w, http.StatusInternalServerError, "Failed to create portfolio")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("User %s not found", req.UserID))
		return
	}

	p, err := h.portfolios.Create(userID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		writeError(w, http.StatusInternalServerError, "Failed to create portfolio")
		return
	}

	opening := PortfolioStat{
		StatID:      uuid.New(),
		PortfolioID: p.PortfolioID,
		RecordedAt:  p.CreatedAt,
	}
	if err := h.stats.Insert(opening); err != nil {
		h.log.Error().Err(err).Msg("Failed to insert opening stat")
		writeError(w, http.StatusInternalServerError, "Failed to create portfolio")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"portfolio": p,
	})
}

// ListPortfolios lists all portfolios, optionally filtered by user_id
func (h *Handlers) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	var (
		portfolios []Portfolio
		err        error
	)

	if userStr := r.URL.Query().Get("user_id"); userStr != "" {
		userID, parseErr := uuid.Parse(userStr)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id")
			return
		}
		portfolios, err = h.portfolios.ListByUser(userID)
	} else {
		portfolios, err = h.portfolios.List()
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		writeError(w, http.StatusInternalServerError, "Failed to list portfolios")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"portfolios": portfolios,
	})
}

// GetPortfolio returns one portfolio
func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.parsePortfolioID(w, r)
	if !ok {
		return
	}

	p, err := h.portfolios.GetByID(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get portfolio")
		writeError(w, http.StatusInternalServerError, "Failed to get portfolio")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Portfolio not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"portfolio": p,
	})
}

// GetPositions returns the latest position snapshot per symbol, as of an
// optional ?date= (default now)
func (h *Handlers) GetPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.parsePortfolioID(w, r)
	if !ok {
		return
	}

	asOf, ok := h.parseAsOf(w, r)
	if !ok {
		return
	}

	snapshots, err := h.positions.LatestPositions(portfolioID, asOf)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get positions")
		writeError(w, http.StatusInternalServerError, "Failed to get positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"positions": snapshots,
	})
}

// GetStats returns the stat history for a portfolio, oldest first
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.parsePortfolioID(w, r)
	if !ok {
		return
	}

	stats, err := h.stats.ListByPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get stats")
		writeError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"stats":  stats,
	})
}

func (h *Handlers) parsePortfolioID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	portfolioID, err := uuid.Parse(chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid portfolio id")
		return uuid.Nil, false
	}
	return portfolioID, true
}

func (h *Handlers) parseAsOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf := time.Now().UTC()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return time.Time{}, false
		}
		asOf = parsed.Add(24*time.Hour - time.Second)
	}
	return asOf, true
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
