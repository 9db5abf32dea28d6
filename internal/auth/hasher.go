package auth

import "golang.org/x/crypto/bcrypt"

// Hasher produces and checks salted bcrypt digests. The cost is chosen so
// a single hash takes on the order of 100ms on current hardware; tests
// construct it with bcrypt.MinCost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a fresh digest of secret. Two calls on the same input
// produce different outputs because bcrypt salts each one.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether secret matches the stored digest. A malformed
// digest verifies false; it never propagates an error to the caller.
// bcrypt performs its own constant-time comparison.
func (h *Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
