package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type serviceFixture struct {
	service *Service
	store   *MemoryStore
	clock   time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := NewMemoryStore()
	hasher := NewPasswordHasher(bcrypt.MinCost)
	tokens := newTestTokenService(time.Hour)
	service := NewService(store, hasher, tokens, ServiceConfig{
		Lockout:       LockoutPolicy{MaxAttempts: 5, LockDuration: 2 * time.Hour},
		ResetTokenTTL: 15 * time.Minute,
	})

	fixture := &serviceFixture{service: service, store: store, clock: time.Now().UTC()}
	service.now = func() time.Time { return fixture.clock }
	return fixture
}

func (f *serviceFixture) register(t *testing.T, email, password string) Account {
	t.Helper()
	_, account, err := f.service.Register(context.Background(), "Test User", email, password, RoleUser)
	require.NoError(t, err)
	return account
}

func (f *serviceFixture) account(t *testing.T, id string) Account {
	t.Helper()
	account, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return account
}

func TestLoginSuccess(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	token, principal, err := f.service.Login(context.Background(), "a@b.com", "hunter2hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, created.ID, principal.ID)
	require.Equal(t, RoleUser, principal.Role)

	claims, err := f.service.tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, created.ID, claims.Subject)

	stored := f.account(t, created.ID)
	require.Zero(t, stored.FailedAttempts)
	require.NotNil(t, stored.LastLoginAt)
}

func TestLoginCaseInsensitiveEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "Someone@Example.COM", "hunter2hunter2")

	_, _, err := f.service.Login(context.Background(), "sOmeone@example.com", "hunter2hunter2")
	require.NoError(t, err)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	_, _, err := f.service.Login(context.Background(), "nobody@b.com", "whatever-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWrongPasswordIncrements(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	for i := 1; i <= 2; i++ {
		_, _, err := f.service.Login(context.Background(), "a@b.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Equal(t, i, f.account(t, created.ID).FailedAttempts)
	}
}

func TestLoginLockoutSequence(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	for i := 0; i < 5; i++ {
		_, _, err := f.service.Login(context.Background(), "a@b.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	stored := f.account(t, created.ID)
	require.NotNil(t, stored.LockedUntil)
	require.Equal(t, f.clock.Add(2*time.Hour), *stored.LockedUntil)

	// Sixth attempt with the correct password: the lock wins.
	_, _, err := f.service.Login(context.Background(), "a@b.com", "hunter2hunter2")
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, *stored.LockedUntil, locked.Until)

	// Submissions while locked never extend the lock or count attempts.
	_, _, err = f.service.Login(context.Background(), "a@b.com", "wrong-password")
	require.ErrorAs(t, err, &locked)
	after := f.account(t, created.ID)
	require.Equal(t, stored.FailedAttempts, after.FailedAttempts)
	require.Equal(t, *stored.LockedUntil, *after.LockedUntil)
}

func TestLoginLockExpiresThenSucceeds(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	for i := 0; i < 5; i++ {
		_, _, _ = f.service.Login(context.Background(), "a@b.com", "wrong-password")
	}
	require.NotNil(t, f.account(t, created.ID).LockedUntil)

	f.clock = f.clock.Add(2*time.Hour + time.Minute)

	_, _, err := f.service.Login(context.Background(), "a@b.com", "hunter2hunter2")
	require.NoError(t, err)

	stored := f.account(t, created.ID)
	require.Zero(t, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestLoginFourFailuresThenFifthLocks(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	four := 4
	require.NoError(t, f.store.UpdateSecurityFields(context.Background(), created.ID, SecurityUpdate{
		FailedAttempts: &four,
	}))

	_, _, err := f.service.Login(context.Background(), "a@b.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	stored := f.account(t, created.ID)
	require.NotNil(t, stored.LockedUntil)
	require.Equal(t, f.clock.Add(2*time.Hour), *stored.LockedUntil)
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")
	f.store.SetActive(created.ID, false)

	_, _, err := f.service.Login(context.Background(), "a@b.com", "hunter2hunter2")
	require.ErrorIs(t, err, ErrAccountInactive)

	stored := f.account(t, created.ID)
	require.Zero(t, stored.FailedAttempts)
	require.Nil(t, stored.LastLoginAt)
}

func TestLoginSuccessResetIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	for i := 0; i < 2; i++ {
		_, _, err := f.service.Login(context.Background(), "a@b.com", "hunter2hunter2")
		require.NoError(t, err)
		require.Zero(t, f.account(t, created.ID).FailedAttempts)
	}
}

func TestConcurrentFailuresNotUndercounted(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	policy := LockoutPolicy{MaxAttempts: 1000, LockDuration: time.Hour}
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.RecordLoginFailure(context.Background(), created.ID, policy, now)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 20, f.account(t, created.ID).FailedAttempts)
}

func TestResetTokenFlow(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "old-password-1")

	plaintext, err := f.service.IssueResetToken(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)
	require.NotNil(t, f.account(t, created.ID).ResetTokenDigest)

	token, err := f.service.ConsumeResetToken(context.Background(), plaintext, "new-password-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored := f.account(t, created.ID)
	require.Nil(t, stored.ResetTokenDigest)
	require.Nil(t, stored.ResetTokenExpiresAt)

	_, _, err = f.service.Login(context.Background(), "a@b.com", "old-password-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login(context.Background(), "a@b.com", "new-password-1")
	require.NoError(t, err)

	// Single use: the same plaintext cannot be redeemed twice.
	_, err = f.service.ConsumeResetToken(context.Background(), plaintext, "another-password")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetTokenExpired(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "old-password-1")

	plaintext, err := f.service.IssueResetToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	f.clock = f.clock.Add(16 * time.Minute)

	_, err = f.service.ConsumeResetToken(context.Background(), plaintext, "new-password-1")
	require.ErrorIs(t, err, ErrResetTokenExpired)

	// No mutation on failure.
	_, _, err = f.service.Login(context.Background(), "a@b.com", "old-password-1")
	require.NoError(t, err)
	require.NotNil(t, f.account(t, created.ID).ResetTokenDigest)
}

func TestResetTokenClearsLockout(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "old-password-1")

	plaintext, err := f.service.IssueResetToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, _ = f.service.Login(context.Background(), "a@b.com", "wrong-password")
	}
	require.NotNil(t, f.account(t, created.ID).LockedUntil)

	_, err = f.service.ConsumeResetToken(context.Background(), plaintext, "new-password-1")
	require.NoError(t, err)

	stored := f.account(t, created.ID)
	require.Nil(t, stored.LockedUntil)
	require.Zero(t, stored.FailedAttempts)

	_, _, err = f.service.Login(context.Background(), "a@b.com", "new-password-1")
	require.NoError(t, err)
}

func TestIssueResetTokenOverwritesPrior(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com", "old-password-1")

	first, err := f.service.IssueResetToken(context.Background(), "a@b.com")
	require.NoError(t, err)
	second, err := f.service.IssueResetToken(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = f.service.ConsumeResetToken(context.Background(), first, "new-password-1")
	require.ErrorIs(t, err, ErrResetTokenInvalid)

	_, err = f.service.ConsumeResetToken(context.Background(), second, "new-password-1")
	require.NoError(t, err)
}

func TestIssueResetTokenUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.IssueResetToken(context.Background(), "nobody@b.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRefresh(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "a@b.com", "hunter2hunter2")

	token, err := f.service.Refresh(context.Background(), created.principal())
	require.NoError(t, err)

	claims, err := f.service.tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, created.ID, claims.Subject)

	f.store.SetActive(created.ID, false)
	_, err = f.service.Refresh(context.Background(), created.principal())
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com", "hunter2hunter2")

	_, _, err := f.service.Register(context.Background(), "Other", "a@b.com", "hunter2hunter2", RoleUser)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRoleHandling(t *testing.T) {
	f := newServiceFixture(t)

	_, account, err := f.service.Register(context.Background(), "Test", "default@b.com", "hunter2hunter2", "")
	require.NoError(t, err)
	require.Equal(t, RoleUser, account.Role)

	_, _, err = f.service.Register(context.Background(), "Test", "bad@b.com", "hunter2hunter2", Role("superuser"))
	require.Error(t, err)
	_, findErr := f.store.FindByEmail(context.Background(), "bad@b.com")
	require.ErrorIs(t, findErr, ErrAccountNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.service.EnsureAdmin(context.Background(), "Admin", "admin@b.com", "admin-password-1"))

	account, err := f.store.FindByEmail(context.Background(), "admin@b.com")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, account.Role)

	// Idempotent: an existing account is left untouched.
	require.NoError(t, f.service.EnsureAdmin(context.Background(), "Admin", "admin@b.com", "different-password"))
	_, _, err = f.service.Login(context.Background(), "admin@b.com", "admin-password-1")
	require.NoError(t, err)

	// Nothing configured, nothing created.
	require.NoError(t, f.service.EnsureAdmin(context.Background(), "", "", ""))
	require.Error(t, f.service.EnsureAdmin(context.Background(), "Admin", "only@b.com", ""))
}

func TestLoginEmptyInputs(t *testing.T) {
	f := newServiceFixture(t)

	_, _, err := f.service.Login(context.Background(), "", "password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login(context.Background(), "a@b.com", "   ")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
