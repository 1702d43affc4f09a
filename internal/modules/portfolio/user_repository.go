package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UserRepository handles user persistence
type UserRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, log zerolog.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log.With().Str("repo", "user").Logger(),
	}
}

// Create inserts a new user. Email must be unique.
func (r *UserRepository) Create(email, name string) (*User, error) {
	user := &User{
		UserID:    uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO users (user_id, email, name, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		user.UserID.String(),
		user.Email,
		user.Name,
		user.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.log.Info().Str("user_id", user.UserID.String()).Str("email", email).Msg("User created")
	return user, nil
}

// GetByID returns a user by id, or nil when not found
func (r *UserRepository) GetByID(userID uuid.UUID) (*User, error) {
	query := `
		SELECT user_id, email, name, created_at FROM users
		WHERE user_id = ?
	`

	user, err := scanUser(r.db.QueryRow(query, userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail returns a user by email, or nil when not found
func (r *UserRepository) GetByEmail(email string) (*User, error) {
	query := `
		SELECT user_id, email, name, created_at FROM users
		WHERE email = ?
	`

	user, err := scanUser(r.db.QueryRow(query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// List returns all users ordered by creation time
func (r *UserRepository) List() ([]User, error) {
	query := `
		SELECT user_id, email, name, created_at FROM users
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user              User
		userID, createdAt string
		name              sql.NullString
	)

	if err := row.Scan(&userID, &user.Email, &name, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if user.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	if user.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	user.Name = name.String

	return &user, nil
}
