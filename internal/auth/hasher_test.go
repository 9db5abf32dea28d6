package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	digest, err := hasher.Hash("Secur3Pass!")
	require.NoError(t, err)

	assert.NotEqual(t, "Secur3Pass!", digest)
	assert.True(t, hasher.Verify("Secur3Pass!", digest))
	assert.False(t, hasher.Verify("wrong", digest))
}

func TestHasherSaltsEveryCall(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	first, err := hasher.Hash("same-secret")
	require.NoError(t, err)
	second, err := hasher.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Verify("same-secret", first))
	assert.True(t, hasher.Verify("same-secret", second))
}

func TestHasherMalformedDigest(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	assert.False(t, hasher.Verify("anything", "not-a-bcrypt-digest"))
	assert.False(t, hasher.Verify("anything", ""))
}

func TestHasherClampsCost(t *testing.T) {
	hasher := NewHasher(99)

	digest, err := hasher.Hash("Secur3Pass!")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
