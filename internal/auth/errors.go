package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrResetTokenInvalid  = errors.New("invalid reset token")
	ErrResetTokenExpired  = errors.New("reset token expired")
)

// ErrAccountLocked is distinct from ErrInvalidCredentials internally, for
// tests and metrics. The login handler renders both as the same generic
// message so lockout state cannot be probed.
type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}

// TokenErrorKind discriminates verification failures internally. Callers
// at the HTTP boundary collapse every kind into one opaque 401.
type TokenErrorKind string

const (
	TokenMalformed     TokenErrorKind = "malformed"
	TokenExpired       TokenErrorKind = "expired"
	TokenWrongIssuer   TokenErrorKind = "wrong_issuer"
	TokenWrongAudience TokenErrorKind = "wrong_audience"
)

type TokenError struct {
	Kind  TokenErrorKind
	cause error
}

func (e *TokenError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("token %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("token %s", e.Kind)
}

func (e *TokenError) Unwrap() error {
	return e.cause
}
