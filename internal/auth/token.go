package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenCodec mints and checks self-contained HS256 tokens. Validity is
// entirely signature plus embedded expiry; there is no server-side token
// record.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the codec's time source. Test hook.
func (c *TokenCodec) WithClock(now func() time.Time) {
	c.now = now
}

func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *TokenCodec) IssueAccess(subjectID string) (string, error) {
	return c.issue(subjectID, TokenKindAccess, c.accessTTL)
}

func (c *TokenCodec) IssueRefresh(subjectID string) (string, error) {
	return c.issue(subjectID, TokenKindRefresh, c.refreshTTL)
}

func (c *TokenCodec) issue(subjectID string, kind TokenKind, ttl time.Duration) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub": subjectID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": string(kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature, then expiry, then kind, and returns the subject
// id. The three failure reasons stay distinguishable so the service can
// log them; callers outside this package only ever see the collapsed
// ErrInvalidCredentials.
func (c *TokenCodec) Verify(raw string, kind TokenKind) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// Signature and structural problems take precedence over expiry.
		if errors.Is(err, jwt.ErrTokenMalformed) ||
			errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
			errors.Is(err, jwt.ErrTokenUnverifiable) {
			return "", ErrTokenInvalid
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if !token.Valid {
		return "", ErrTokenInvalid
	}

	if typ, _ := claims["typ"].(string); typ != string(kind) {
		return "", ErrTokenKindMismatch
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrTokenInvalid
	}
	return subject, nil
}
