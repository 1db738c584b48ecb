package auth

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles. Unknown values are rejected at
// the account-creation boundary, never inside the login path.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleUser, RoleManager, RoleAdmin:
		return Role(value), nil
	}
	return "", fmt.Errorf("unknown role: %q", value)
}

// Account is the persisted user record. The security fields
// (FailedAttempts, LockedUntil and the reset token columns) are mutated
// only through Store.UpdateSecurityFields and Store.RecordLoginFailure.
type Account struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	Role                Role
	IsActive            bool
	FailedAttempts      int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	ResetTokenDigest    *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (a Account) lockoutState() LockoutState {
	return LockoutState{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}
}

func (a Account) principal() Principal {
	return Principal{ID: a.ID, Email: a.Email, Role: a.Role}
}

// Principal is the authenticated identity attached to a request. It is a
// value snapshot taken at token issuance, never a live view of the
// mutable account record.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
