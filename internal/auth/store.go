package auth

import (
	"context"
	"time"
)

// SecurityUpdate names the account fields this package may mutate. Nil
// pointers leave a column untouched; the Clear flags null the optional
// columns. Implementations must apply the whole update as one atomic
// write.
type SecurityUpdate struct {
	PasswordHash        *string
	FailedAttempts      *int
	LockedUntil         *time.Time
	ClearLockedUntil    bool
	LastLoginAt         *time.Time
	ResetTokenDigest    *string
	ResetTokenExpiresAt *time.Time
	ClearResetToken     bool
}

// Store is the externally-owned account collaborator. Lookups return
// ErrAccountNotFound when no row matches; Create returns ErrEmailTaken on
// a duplicate email.
type Store interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByResetTokenDigest(ctx context.Context, digest string) (Account, error)
	UpdateSecurityFields(ctx context.Context, id string, update SecurityUpdate) error

	// RecordLoginFailure applies policy.Fail under per-account write
	// serialization, so concurrent failed logins never under-count, and
	// returns the persisted state.
	RecordLoginFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (LockoutState, error)
}
