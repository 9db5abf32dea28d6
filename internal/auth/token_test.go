package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(clock *fakeClock) *TokenCodec {
	codec := NewTokenCodec("test-signing-secret", 30*time.Minute, 7*24*time.Hour)
	codec.WithClock(clock.Now)
	return codec
}

func TestTokenCodecRoundTrip(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	access, err := codec.IssueAccess("subject-1")
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh("subject-1")
	require.NoError(t, err)

	subject, err := codec.Verify(access, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", subject)

	subject, err = codec.Verify(refresh, TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", subject)
}

func TestTokenCodecKindMismatch(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	access, err := codec.IssueAccess("subject-1")
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh("subject-1")
	require.NoError(t, err)

	_, err = codec.Verify(access, TokenKindRefresh)
	assert.ErrorIs(t, err, ErrTokenKindMismatch)
	_, err = codec.Verify(refresh, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenKindMismatch)
}

func TestTokenCodecExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	access, err := codec.IssueAccess("subject-1")
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh("subject-1")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = codec.Verify(access, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// The refresh token outlives the access token.
	_, err = codec.Verify(refresh, TokenKindRefresh)
	require.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = codec.Verify(refresh, TokenKindRefresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodecTamper(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	access, err := codec.IssueAccess("subject-1")
	require.NoError(t, err)

	tampered := access[:len(access)-2] + "xx"
	_, err = codec.Verify(tampered, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Verify("not-a-token", TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Verify("", TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodecWrongSecret(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	other := NewTokenCodec("a-different-secret", 30*time.Minute, 7*24*time.Hour)
	other.WithClock(clock.Now)

	foreign, err := other.IssueAccess("subject-1")
	require.NoError(t, err)

	_, err = codec.Verify(foreign, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodecSignaturePrecedesExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clock)

	access, err := codec.IssueAccess("subject-1")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	tampered := access[:len(access)-2] + "xx"
	_, err = codec.Verify(tampered, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
