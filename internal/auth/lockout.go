package auth

import "time"

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = 15 * time.Minute
)

// LockoutPolicy holds the failed-attempt rules applied to an Identity's
// (FailureCount, LockedUntil) pair. It is a pure rule set: callers load
// the record, apply a rule, and write the record back through the
// repository's atomic login-state methods.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  defaultMaxAttempts,
		LockDuration: defaultLockDuration,
	}
}

// RegisterFailure records a failed verification attempt. While a lock is
// active the record is left untouched; the caller has already rejected the
// attempt without consulting the hasher. An expired lock is cleared by the
// attempt itself (lazy unlock) and counting restarts with this failure.
func (p LockoutPolicy) RegisterFailure(identity *Identity, now time.Time) {
	if identity.Locked(now) {
		return
	}
	if identity.LockedUntil != nil {
		identity.LockedUntil = nil
		identity.FailureCount = 0
	}

	identity.FailureCount++
	if identity.FailureCount >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		identity.LockedUntil = &until
	}
}

// RegisterSuccess records a successful verification: the failure count
// resets exactly once, any expired lock is cleared, and the
// last-authenticated stamp is updated.
func (p LockoutPolicy) RegisterSuccess(identity *Identity, now time.Time) {
	identity.FailureCount = 0
	identity.LockedUntil = nil
	at := now
	identity.LastAuthenticatedAt = &at
}
