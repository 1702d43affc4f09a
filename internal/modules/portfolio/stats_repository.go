package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatsRepository handles the append-only portfolio_stats table. One row
// per portfolio per day after a replay; the most recent row by recorded_at
// is authoritative for a date.
type StatsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sql.DB, log zerolog.Logger) *StatsRepository {
	return &StatsRepository{
		db:  db,
		log: log.With().Str("repo", "stats").Logger(),
	}
}

const statColumns = "stat_id, portfolio_id, recorded_at, portfolio_balance, alpha, beta, max_drawdown, sharpe_ratio, std_dev, turnover"

// Insert appends a new stat row
func (r *StatsRepository) Insert(stat PortfolioStat) error {
	return r.insert(r.db, stat)
}

// InsertTx appends a new stat row within an existing transaction
func (r *StatsRepository) InsertTx(tx *sql.Tx, stat PortfolioStat) error {
	return r.insert(tx, stat)
}

func (r *StatsRepository) insert(db execer, stat PortfolioStat) error {
	query := `
		INSERT INTO portfolio_stats
		(` + statColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		stat.StatID.String(),
		stat.PortfolioID.String(),
		stat.RecordedAt.UTC().Format(time.RFC3339),
		stat.PortfolioBalance,
		stat.Alpha,
		stat.Beta,
		stat.MaxDrawdown,
		stat.SharpeRatio,
		stat.StdDev,
		stat.Turnover,
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio stat: %w", err)
	}

	return nil
}

// LatestAtOrBefore returns the most recent stat recorded at or before t,
// or nil when the portfolio has no history yet
func (r *StatsRepository) LatestAtOrBefore(portfolioID uuid.UUID, t time.Time) (*PortfolioStat, error) {
	query := `
		SELECT ` + statColumns + ` FROM portfolio_stats
		WHERE portfolio_id = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	stat, err := scanStat(r.db.QueryRow(query, portfolioID.String(), t.UTC().Format(time.RFC3339)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest stat: %w", err)
	}

	return stat, nil
}

// RangeBetween returns stats within [from, to] inclusive, oldest first
func (r *StatsRepository) RangeBetween(portfolioID uuid.UUID, from, to time.Time) ([]PortfolioStat, error) {
	query := `
		SELECT ` + statColumns + ` FROM portfolio_stats
		WHERE portfolio_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(query,
		portfolioID.String(),
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats range: %w", err)
	}
	defer rows.Close()

	var stats []PortfolioStat
	for rows.Next() {
		stat, err := scanStatFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return stats, nil
}

// ListByPortfolio returns the full stat history, oldest first
func (r *StatsRepository) ListByPortfolio(portfolioID uuid.UUID) ([]PortfolioStat, error) {
	return r.RangeBetween(portfolioID, time.Time{}, time.Now().UTC().AddDate(100, 0, 0))
}

// AverageBalance returns the mean portfolio_balance over [from, to], or 0
// when the window holds no stats
func (r *StatsRepository) AverageBalance(portfolioID uuid.UUID, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(portfolio_balance), 0) FROM portfolio_stats
		WHERE portfolio_id = ? AND recorded_at >= ? AND recorded_at <= ?
	`

	var avg float64
	err := r.db.QueryRow(query,
		portfolioID.String(),
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average balance: %w", err)
	}

	return avg, nil
}

// DeleteForPortfolioTx removes every stat row for a portfolio. Used only by
// the backtest seeder's destructive reset.
func (r *StatsRepository) DeleteForPortfolioTx(tx *sql.Tx, portfolioID uuid.UUID) error {
	result, err := tx.Exec("DELETE FROM portfolio_stats WHERE portfolio_id = ?", portfolioID.String())
	if err != nil {
		return fmt.Errorf("failed to delete portfolio stats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Warn().
		Str("portfolio_id", portfolioID.String()).
		Int64("rows_affected", rowsAffected).
		Msg("Portfolio stats cleared")

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStat(row rowScanner) (*PortfolioStat, error) {
	var (
		stat                PortfolioStat
		statID, portfolioID string
		recordedAt          string
	)

	err := row.Scan(
		&statID,
		&portfolioID,
		&recordedAt,
		&stat.PortfolioBalance,
		&stat.Alpha,
		&stat.Beta,
		&stat.MaxDrawdown,
		&stat.SharpeRatio,
		&stat.StdDev,
		&stat.Turnover,
	)
	if err != nil {
		return nil, err
	}

	if stat.StatID, err = uuid.Parse(statID); err != nil {
		return nil, fmt.Errorf("failed to parse stat id: %w", err)
	}
	if stat.PortfolioID, err = uuid.Parse(portfolioID); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio id: %w", err)
	}
	if stat.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	return &stat, nil
}

func scanStatFromRows(rows *sql.Rows) (PortfolioStat, error) {
	stat, err := scanStat(rows)
	if err != nil {
		return PortfolioStat{}, err
	}
	return *stat, nil
}
