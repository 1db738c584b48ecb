package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

const accountColumns = `id, name, email, password_hash, role, is_active,
	failed_attempts, locked_until, last_login_at,
	reset_token_digest, reset_token_expires_at, created_at, updated_at`

// Repository is the Postgres-backed account store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type CleanupResult struct {
	ClearedResetTokens int64 `json:"cleared_reset_tokens"`
	ClearedLocks       int64 `json:"cleared_locks"`
}

func (r *Repository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate account id: %w", err)
		}
		account.ID = id.String()
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, is_active, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
	`, account.ID, account.Name, account.Email, account.PasswordHash, account.Role, account.IsActive, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.findOne(ctx, `WHERE email = $1`, email)
}

func (r *Repository) FindByID(ctx context.Context, id string) (Account, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *Repository) FindByResetTokenDigest(ctx context.Context, digest string) (Account, error) {
	return r.findOne(ctx, `WHERE reset_token_digest = $1`, digest)
}

func (r *Repository) findOne(ctx context.Context, where string, arg any) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users `+where, arg)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account: %w", err)
	}

	return account, nil
}

// UpdateSecurityFields applies the update as a single UPDATE statement,
// so partial application is impossible even when the caller's context is
// cancelled mid-call.
func (r *Repository) UpdateSecurityFields(ctx context.Context, id string, update SecurityUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PasswordHash != nil {
		set("password_hash", *update.PasswordHash)
	}
	if update.FailedAttempts != nil {
		set("failed_attempts", *update.FailedAttempts)
	}
	if update.LockedUntil != nil {
		set("locked_until", update.LockedUntil.UTC())
	} else if update.ClearLockedUntil {
		sets = append(sets, "locked_until = NULL")
	}
	if update.LastLoginAt != nil {
		set("last_login_at", update.LastLoginAt.UTC())
	}
	if update.ResetTokenDigest != nil {
		set("reset_token_digest", *update.ResetTokenDigest)
	}
	if update.ResetTokenExpiresAt != nil {
		set("reset_token_expires_at", update.ResetTokenExpiresAt.UTC())
	}
	if update.ClearResetToken {
		sets = append(sets, "reset_token_digest = NULL", "reset_token_expires_at = NULL")
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = $1`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update security fields: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("security fields rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// RecordLoginFailure serializes concurrent failures on the same account
// with a row lock, so the counter never under-counts.
func (r *Repository) RecordLoginFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (LockoutState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return LockoutState{}, fmt.Errorf("begin login failure tx: %w", err)
	}
	defer tx.Rollback()

	var state LockoutState
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&state.FailedAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LockoutState{}, ErrAccountNotFound
		}
		return LockoutState{}, fmt.Errorf("lock account row: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		state.LockedUntil = &value
	}

	next := policy.Fail(state, now.UTC())

	var nextLock any
	if next.LockedUntil != nil {
		nextLock = next.LockedUntil.UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, id, next.FailedAttempts, nextLock, now.UTC())
	if err != nil {
		return LockoutState{}, fmt.Errorf("persist login failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return LockoutState{}, fmt.Errorf("commit login failure tx: %w", err)
	}

	return next, nil
}

// CleanupExpiredSecurityState clears expired reset tokens and elapsed
// locks in bounded batches. It only accelerates the lazy cleanup the
// login and reset paths already perform.
func (r *Repository) CleanupExpiredSecurityState(ctx context.Context, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	clearedTokens, err := r.clearBatch(ctx, batchSize, `
		WITH stale AS (
			SELECT id FROM users
			WHERE reset_token_expires_at IS NOT NULL AND reset_token_expires_at < NOW()
			ORDER BY reset_token_expires_at ASC
			LIMIT $1
		)
		UPDATE users u
		SET reset_token_digest = NULL, reset_token_expires_at = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired reset tokens: %w", err)
	}

	clearedLocks, err := r.clearBatch(ctx, batchSize, `
		WITH stale AS (
			SELECT id FROM users
			WHERE locked_until IS NOT NULL AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $1
		)
		UPDATE users u
		SET locked_until = NULL, failed_attempts = 0, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired locks: %w", err)
	}

	return CleanupResult{ClearedResetTokens: clearedTokens, ClearedLocks: clearedLocks}, nil
}

func (r *Repository) clearBatch(ctx context.Context, batchSize int, query string) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type accountScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row accountScanner) (Account, error) {
	var account Account
	var lockedUntil, lastLoginAt, resetExpires sql.NullTime
	var resetDigest sql.NullString
	var role string

	err := row.Scan(
		&account.ID, &account.Name, &account.Email, &account.PasswordHash, &role, &account.IsActive,
		&account.FailedAttempts, &lockedUntil, &lastLoginAt,
		&resetDigest, &resetExpires, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	account.Role = Role(role)
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		account.LockedUntil = &value
	}
	if lastLoginAt.Valid {
		value := lastLoginAt.Time.UTC()
		account.LastLoginAt = &value
	}
	if resetDigest.Valid {
		account.ResetTokenDigest = &resetDigest.String
	}
	if resetExpires.Valid {
		value := resetExpires.Time.UTC()
		account.ResetTokenExpiresAt = &value
	}

	return account, nil
}
