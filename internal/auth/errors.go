package auth

import "errors"

// External error taxonomy. Handlers map these four to HTTP statuses;
// everything else is an internal failure.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyExists      = errors.New("identity already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrServiceUnavailable = errors.New("identity store unavailable")
)

// ErrIdentityNotFound is a repository-level outcome. The service never
// lets it reach a caller: lookups that miss collapse into
// ErrInvalidCredentials.
var ErrIdentityNotFound = errors.New("identity not found")

// Token codec failure reasons. Consumed internally for audit logging;
// callers always see ErrInvalidCredentials.
var (
	ErrTokenInvalid      = errors.New("token invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)
