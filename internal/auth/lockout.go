package auth

import "time"

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 2 * time.Hour
)

// LockoutPolicy holds the thresholds for the per-account lockout state
// machine. It decides state transitions only; credential correctness is
// decided by the caller.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// LockoutState mirrors the failed_attempts / locked_until account columns.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether the state is locked at now. An elapsed lock
// counts as unlocked; the stored fields are cleared lazily by the next
// transition, not by a background timer.
func (s LockoutState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Fail applies one incorrect-credential transition and returns the next
// state. An active lock is never extended by further submissions; an
// expired lock restarts counting at 1. Entering the locked state drops
// the counter, since Locked carries only the deadline.
func (p LockoutPolicy) Fail(s LockoutState, now time.Time) LockoutState {
	p = p.withDefaults()

	if s.Locked(now) {
		return s
	}
	if s.LockedUntil != nil {
		return LockoutState{FailedAttempts: 1}
	}

	next := s.FailedAttempts + 1
	if next >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		return LockoutState{LockedUntil: &until}
	}

	return LockoutState{FailedAttempts: next}
}

// Reset is the correct-credential transition: back to Unlocked(0).
func (p LockoutPolicy) Reset() LockoutState {
	return LockoutState{}
}
