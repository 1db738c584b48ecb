package auth

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex serializes every mutation, which satisfies the same
// no-lost-update guarantee the Postgres repository provides with row
// locks.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func (s *MemoryStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return ErrEmailTaken
		}
	}

	if account.ID == "" {
		s.nextID++
		account.ID = "acct-" + strconv.Itoa(s.nextID)
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.Email == email {
			return *account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account, ok := s.accounts[id]; ok {
		return *account, nil
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) FindByResetTokenDigest(_ context.Context, digest string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.ResetTokenDigest != nil && *account.ResetTokenDigest == digest {
			return *account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) UpdateSecurityFields(_ context.Context, id string, update SecurityUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	if update.PasswordHash != nil {
		account.PasswordHash = *update.PasswordHash
	}
	if update.FailedAttempts != nil {
		account.FailedAttempts = *update.FailedAttempts
	}
	if update.LockedUntil != nil {
		value := update.LockedUntil.UTC()
		account.LockedUntil = &value
	} else if update.ClearLockedUntil {
		account.LockedUntil = nil
	}
	if update.LastLoginAt != nil {
		value := update.LastLoginAt.UTC()
		account.LastLoginAt = &value
	}
	if update.ResetTokenDigest != nil {
		value := *update.ResetTokenDigest
		account.ResetTokenDigest = &value
	}
	if update.ResetTokenExpiresAt != nil {
		value := update.ResetTokenExpiresAt.UTC()
		account.ResetTokenExpiresAt = &value
	}
	if update.ClearResetToken {
		account.ResetTokenDigest = nil
		account.ResetTokenExpiresAt = nil
	}
	account.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *MemoryStore) RecordLoginFailure(_ context.Context, id string, policy LockoutPolicy, now time.Time) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return LockoutState{}, ErrAccountNotFound
	}

	next := policy.Fail(LockoutState{
		FailedAttempts: account.FailedAttempts,
		LockedUntil:    account.LockedUntil,
	}, now.UTC())

	account.FailedAttempts = next.FailedAttempts
	account.LockedUntil = next.LockedUntil
	account.UpdatedAt = time.Now().UTC()

	return next, nil
}

// SetActive flips the activation flag; registration and admin tooling use
// it in tests.
func (s *MemoryStore) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account, ok := s.accounts[id]; ok {
		account.IsActive = active
	}
}
