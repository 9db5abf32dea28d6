package auth

import (
	"context"
	"time"
)

// Repository is the identity store contract. Implementations must enforce
// username/email uniqueness at write time and provide per-record atomic
// updates for the login-state methods: two concurrent failed attempts
// against the same identity both increment the failure count, whatever
// their relative order.
//
// All methods may fail transiently; the service routes every call through
// its circuit breaker.
type Repository interface {
	// FindByUsernameOrEmail matches the identifier against the username
	// or, case-insensitively, the email. Returns ErrIdentityNotFound on a
	// miss.
	FindByUsernameOrEmail(ctx context.Context, identifier string) (Identity, error)

	// FindByID returns ErrIdentityNotFound on a miss.
	FindByID(ctx context.Context, id string) (Identity, error)

	// Create persists a new identity, assigning its id. A uniqueness
	// violation, racing or not, surfaces as ErrAlreadyExists.
	Create(ctx context.Context, identity Identity) (Identity, error)

	// Update writes the full record. Returns ErrIdentityNotFound if the
	// id does not exist.
	Update(ctx context.Context, identity Identity) (Identity, error)

	// RecordLoginFailure applies policy.RegisterFailure to the stored
	// record in one atomic read-modify-write and returns the updated
	// record. Called for every failed attempt, including attempts
	// rejected while locked, so the record's update stamp always moves.
	RecordLoginFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (Identity, error)

	// RecordLoginSuccess resets the failure count, clears any lock, and
	// stamps the last-authenticated time, atomically.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) (Identity, error)
}
