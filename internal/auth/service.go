package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultResetTokenTTL = 15 * time.Minute
	resetTokenBytes      = 32
)

type ServiceConfig struct {
	Lockout       LockoutPolicy
	ResetTokenTTL time.Duration
}

// Service is the authentication gate: it orchestrates credential
// verification, lockout bookkeeping, token issuance and the password
// reset flow over an externally-owned account store.
type Service struct {
	store    Store
	hasher   PasswordHasher
	tokens   *TokenService
	lockout  LockoutPolicy
	resetTTL time.Duration
	now      func() time.Time
}

func NewService(store Store, hasher PasswordHasher, tokens *TokenService, cfg ServiceConfig) *Service {
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTokenTTL
	}

	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		lockout:  cfg.Lockout.withDefaults(),
		resetTTL: resetTTL,
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register hashes the password and creates an active account. An empty
// role defaults to user; unknown roles are rejected here, at the creation
// boundary.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (string, Account, error) {
	if role == "" {
		role = RoleUser
	}
	if _, err := ParseRole(string(role)); err != nil {
		return "", Account{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", Account{}, err
	}

	account := Account{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Create(ctx, &account); err != nil {
		return "", Account{}, err
	}

	token, err := s.tokens.Issue(account.principal())
	if err != nil {
		return "", Account{}, err
	}

	return token, account, nil
}

// Login verifies credentials and issues a session token. The checks run
// in a fixed order and short-circuit: unknown email, active lock,
// deactivated account, then the password itself. Failed attempts are
// counted only on an existing, active, non-locked account.
func (s *Service) Login(ctx context.Context, email, password string) (string, Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", Principal{}, ErrInvalidCredentials
	}

	now := s.now().UTC()

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", Principal{}, ErrInvalidCredentials
		}
		return "", Principal{}, err
	}

	if account.lockoutState().Locked(now) {
		return "", Principal{}, ErrAccountLocked{Until: *account.LockedUntil}
	}

	if !account.IsActive {
		return "", Principal{}, ErrAccountInactive
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if _, err := s.store.RecordLoginFailure(ctx, account.ID, s.lockout, now); err != nil {
			return "", Principal{}, err
		}
		return "", Principal{}, ErrInvalidCredentials
	}

	zero := 0
	err = s.store.UpdateSecurityFields(ctx, account.ID, SecurityUpdate{
		FailedAttempts:   &zero,
		ClearLockedUntil: true,
		LastLoginAt:      &now,
	})
	if err != nil {
		return "", Principal{}, err
	}

	principal := account.principal()
	token, err := s.tokens.Issue(principal)
	if err != nil {
		return "", Principal{}, err
	}

	return token, principal, nil
}

// Refresh re-issues a token for an already-authenticated principal. The
// caller reaches here through the authorization middleware, so the bearer
// token has been verified; only the account's current standing is
// re-checked.
func (s *Service) Refresh(ctx context.Context, principal Principal) (string, error) {
	account, err := s.store.FindByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !account.IsActive {
		return "", ErrAccountInactive
	}

	return s.tokens.Issue(account.principal())
}

// Account loads the account behind a principal for profile reads.
func (s *Service) Account(ctx context.Context, id string) (Account, error) {
	return s.store.FindByID(ctx, id)
}

// IssueResetToken stores a sha256 digest of a fresh high-entropy token
// plus an expiry on the account and returns the plaintext for out-of-band
// delivery. A prior outstanding token is silently overwritten.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, error) {
	account, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}

	plaintext, err := randomToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	digest := digestResetToken(plaintext)
	expires := s.now().UTC().Add(s.resetTTL)
	err = s.store.UpdateSecurityFields(ctx, account.ID, SecurityUpdate{
		ResetTokenDigest:    &digest,
		ResetTokenExpiresAt: &expires,
	})
	if err != nil {
		return "", err
	}

	return plaintext, nil
}

// ConsumeResetToken redeems a reset token exactly once: the new password
// is hashed and stored, and the reset token and lockout state are cleared
// in the same atomic update. On any failure the account is untouched. A
// fresh session token is returned on success.
func (s *Service) ConsumeResetToken(ctx context.Context, plaintext, newPassword string) (string, error) {
	digest := digestResetToken(strings.TrimSpace(plaintext))

	account, err := s.store.FindByResetTokenDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", err
	}
	if account.ResetTokenExpiresAt == nil || s.now().UTC().After(*account.ResetTokenExpiresAt) {
		return "", ErrResetTokenExpired
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", err
	}

	zero := 0
	err = s.store.UpdateSecurityFields(ctx, account.ID, SecurityUpdate{
		PasswordHash:     &hash,
		FailedAttempts:   &zero,
		ClearLockedUntil: true,
		ClearResetToken:  true,
	})
	if err != nil {
		return "", err
	}

	return s.tokens.Issue(account.principal())
}

// EnsureAdmin creates an administrator account at startup when none with
// the given email exists. Existing accounts are left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return errors.New("admin email and password are required together")
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	_, _, err := s.Register(ctx, name, email, password, RoleAdmin)
	return err
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func digestResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
