package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sourcehub/internal/auth"
)

var ErrNotFound = errors.New("user not found")

// Summary is the outward-facing slice of an account: no password hash, no
// lockout or reset columns.
type Summary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, role, is_active, last_login_at, created_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]Summary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Summary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, is_active, last_login_at, created_at
		FROM users
		WHERE id = $1
	`, id)

	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("query user: %w", err)
	}

	return summary, nil
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update activation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activation rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, id, name string) (Summary, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, name, email, role, is_active, last_login_at, created_at
	`, id, name, time.Now().UTC())

	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("update profile: %w", err)
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (Summary, error) {
	var summary Summary
	var role string
	var lastLoginAt sql.NullTime

	err := row.Scan(&summary.ID, &summary.Name, &summary.Email, &role,
		&summary.IsActive, &lastLoginAt, &summary.CreatedAt)
	if err != nil {
		return Summary{}, err
	}

	summary.Role = auth.Role(role)
	if lastLoginAt.Valid {
		value := lastLoginAt.Time.UTC()
		summary.LastLoginAt = &value
	}

	return summary, nil
}
