package auth

import "time"

// Identity is a registered principal. Lockout state lives on the record
// itself so that the store's per-row atomicity covers it.
type Identity struct {
	ID                  string
	Username            string
	Email               string
	CredentialHash      string
	Active              bool
	FailureCount        int
	LockedUntil         *time.Time
	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the identity is under an active lockout at the
// given instant. The condition is derived from LockedUntil, never stored.
func (i Identity) Locked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

func (i Identity) Summary() IdentitySummary {
	return IdentitySummary{
		ID:       i.ID,
		Username: i.Username,
		Email:    i.Email,
	}
}

type IdentitySummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthResult struct {
	TokenPair
	Identity IdentitySummary `json:"identity"`
}
