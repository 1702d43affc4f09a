package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionRepository handles the append-only position ledger. Snapshots are
// never updated; every mutation is the insertion of a new timestamped row.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Insert appends a new snapshot
func (r *PositionRepository) Insert(snapshot PositionSnapshot) error {
	return r.insert(r.db, snapshot)
}

// InsertTx appends a new snapshot within an existing transaction
func (r *PositionRepository) InsertTx(tx *sql.Tx, snapshot PositionSnapshot) error {
	return r.insert(tx, snapshot)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *PositionRepository) insert(db execer, snapshot PositionSnapshot) error {
	query := `
		INSERT INTO positions (position_id, portfolio_id, symbol_id, quantity, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		snapshot.PositionID.String(),
		snapshot.PortfolioID.String(),
		snapshot.SymbolID.String(),
		snapshot.Quantity.String(),
		snapshot.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position snapshot: %w", err)
	}

	return nil
}

// LatestPositions returns the latest snapshot per symbol recorded at or
// before asOf. Symbols whose latest snapshot is zero are included - an
// explicitly closed position is still a ledger fact. When several rows
// share the max recorded_at (a re-executed trade date stamps the same
// market close), the most recently inserted row wins.
func (r *PositionRepository) LatestPositions(portfolioID uuid.UUID, asOf time.Time) ([]PositionSnapshot, error) {
	query := `
		SELECT position_id, portfolio_id, symbol_id, quantity, recorded_at
		FROM positions
		WHERE portfolio_id = ? AND rowid IN (
			SELECT MAX(p.rowid)
			FROM positions p
			JOIN (
				SELECT symbol_id, MAX(recorded_at) AS latest
				FROM positions
				WHERE portfolio_id = ? AND recorded_at <= ?
				GROUP BY symbol_id
			) q ON p.symbol_id = q.symbol_id AND p.recorded_at = q.latest
			WHERE p.portfolio_id = ?
			GROUP BY p.symbol_id
		)
		ORDER BY symbol_id
	`

	cutoff := asOf.UTC().Format(time.RFC3339)
	rows, err := r.db.Query(query, portfolioID.String(), portfolioID.String(), cutoff, portfolioID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query latest positions: %w", err)
	}
	defer rows.Close()

	var snapshots []PositionSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position snapshots: %w", err)
	}

	return snapshots, nil
}

// LatestQuantity returns the current quantity for one symbol, or nil when
// no snapshot exists at or before asOf. Resolves recorded_at ties the same
// way LatestPositions does, so the two reads always agree.
func (r *PositionRepository) LatestQuantity(portfolioID, symbolID uuid.UUID, asOf time.Time) (*decimal.Decimal, error) {
	query := `
		SELECT quantity FROM positions
		WHERE portfolio_id = ? AND symbol_id = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT 1
	`

	var raw string
	err := r.db.QueryRow(query, portfolioID.String(), symbolID.String(), asOf.UTC().Format(time.RFC3339)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest quantity: %w", err)
	}

	qty, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity %q: %w", raw, err)
	}

	return &qty, nil
}

// HasAnyAsOf reports whether the portfolio has any snapshot at or before asOf
func (r *PositionRepository) HasAnyAsOf(portfolioID uuid.UUID, asOf time.Time) (bool, error) {
	query := `
		SELECT 1 FROM positions
		WHERE portfolio_id = ? AND recorded_at <= ?
		LIMIT 1
	`

	var exists int
	err := r.db.QueryRow(query, portfolioID.String(), asOf.UTC().Format(time.RFC3339)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check positions: %w", err)
	}

	return true, nil
}

// DeleteForPortfolioTx removes every snapshot for a portfolio. Used only by
// the backtest seeder's destructive reset.
func (r *PositionRepository) DeleteForPortfolioTx(tx *sql.Tx, portfolioID uuid.UUID) error {
	result, err := tx.Exec("DELETE FROM positions WHERE portfolio_id = ?", portfolioID.String())
	if err != nil {
		return fmt.Errorf("failed to delete positions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Warn().
		Str("portfolio_id", portfolioID.String()).
		Int64("rows_affected", rowsAffected).
		Msg("Position ledger cleared")

	return nil
}

func scanSnapshot(rows *sql.Rows) (PositionSnapshot, error) {
	var (
		snapshot                          PositionSnapshot
		positionID, portfolioID, symbolID string
		quantity, recordedAt              string
	)

	if err := rows.Scan(&positionID, &portfolioID, &symbolID, &quantity, &recordedAt); err != nil {
		return snapshot, err
	}

	var err error
	if snapshot.PositionID, err = uuid.Parse(positionID); err != nil {
		return snapshot, fmt.Errorf("failed to parse position id: %w", err)
	}
	if snapshot.PortfolioID, err = uuid.Parse(portfolioID); err != nil {
		return snapshot, fmt.Errorf("failed to parse portfolio id: %w", err)
	}
	if snapshot.SymbolID, err = uuid.Parse(symbolID); err != nil {
		return snapshot, fmt.Errorf("failed to parse symbol id: %w", err)
	}
	if snapshot.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return snapshot, fmt.Errorf("failed to parse quantity %q: %w", quantity, err)
	}
	if snapshot.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
		return snapshot, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	return snapshot, nil
}
