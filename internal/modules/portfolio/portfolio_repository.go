package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PortfolioRepository handles portfolio persistence
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio for a user
func (r *PortfolioRepository) Create(userID uuid.UUID, name string) (*Portfolio, error) {
	p := &Portfolio{
		PortfolioID: uuid.New(),
		UserID:      userID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO portfolios (portfolio_id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		p.PortfolioID.String(),
		p.UserID.String(),
		p.Name,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", p.PortfolioID.String()).
		Str("user_id", userID.String()).
		Str("name", name).
		Msg("Portfolio created")

	return p, nil
}

// GetByID returns a portfolio by id, or nil when not found
func (r *PortfolioRepository) GetByID(portfolioID uuid.UUID) (*Portfolio, error) {
	query := `
		SELECT portfolio_id, user_id, name, created_at FROM portfolios
		WHERE portfolio_id = ?
	`

	p, err := scanPortfolio(r.db.QueryRow(query, portfolioID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return p, nil
}

// ListByUser returns all portfolios owned by a user
func (r *PortfolioRepository) ListByUser(userID uuid.UUID) ([]Portfolio, error) {
	query := `
		SELECT portfolio_id, user_id, name, created_at FROM portfolios
		WHERE user_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// List returns all portfolios
func (r *PortfolioRepository) List() ([]Portfolio, error) {
	query := `
		SELECT portfolio_id, user_id, name, created_at FROM portfolios
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var (
		p                            Portfolio
		portfolioID, userID, created string
	)

	if err := row.Scan(&portfolioID, &userID, &p.Name, &created); err != nil {
		return nil, err
	}

	var err error
	if p.PortfolioID, err = uuid.Parse(portfolioID); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio id: %w", err)
	}
	if p.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &p, nil
}
