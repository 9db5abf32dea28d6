package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-serverless/internal/observability"
	"auth-serverless/internal/resilience"
)

const (
	minSecretLength = 8
	maxSecretLength = 72

	defaultStoreTimeout = 5 * time.Second
)

// Service composes the hasher, token codec, lockout policy, and identity
// repository into register/login/refresh. Every repository call goes
// through the circuit breaker with a per-call timeout; a rejected call
// surfaces as ErrServiceUnavailable without touching the store.
type Service struct {
	repo         Repository
	hasher       *Hasher
	codec        *TokenCodec
	logger       *observability.Logger
	lockout      LockoutPolicy
	breaker      *resilience.Breaker
	storeTimeout time.Duration
	now          func() time.Time

	// dummyHash is verified against when the identifier resolves to no
	// usable identity, so response timing stays flat whether or not the
	// account exists.
	dummyHash string
}

func NewService(repo Repository, hasher *Hasher, codec *TokenCodec, logger *observability.Logger) *Service {
	dummyHash, err := hasher.Hash("auth.dummy.credential")
	if err != nil {
		dummyHash = ""
	}

	return &Service{
		repo:         repo,
		hasher:       hasher,
		codec:        codec,
		logger:       logger,
		lockout:      DefaultLockoutPolicy(),
		breaker:      resilience.New(resilience.Settings{Ignore: isBusinessOutcome}),
		storeTimeout: defaultStoreTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		dummyHash:    dummyHash,
	}
}

// isBusinessOutcome marks repository results that are answers, not store
// failures; they must not feed the breaker's failure count. A cancelled
// caller is likewise not evidence the store is down.
func isBusinessOutcome(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, context.Canceled)
}

func (s *Service) WithSecurityConfig(policy LockoutPolicy, storeTimeout time.Duration) {
	if policy.MaxAttempts > 0 {
		s.lockout.MaxAttempts = policy.MaxAttempts
	}
	if policy.LockDuration > 0 {
		s.lockout.LockDuration = policy.LockDuration
	}
	if storeTimeout > 0 {
		s.storeTimeout = storeTimeout
	}
}

func (s *Service) WithBreaker(breaker *resilience.Breaker) {
	if breaker != nil {
		s.breaker = breaker
	}
}

// WithBreakerConfig rebuilds the store breaker with the given threshold
// and recovery timeout, keeping the service's outcome classifier.
func (s *Service) WithBreakerConfig(threshold int, recoveryTimeout time.Duration) {
	s.breaker = resilience.New(resilience.Settings{
		Threshold:       threshold,
		RecoveryTimeout: recoveryTimeout,
		Ignore:          isBusinessOutcome,
	})
}

// WithClock replaces the service's time source. Test hook; the codec
// carries its own.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
}

// Register creates a new identity and returns a token pair for it.
// Uniqueness races at write time resolve exactly like pre-check hits: at
// most one concurrent registration wins, the rest see ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, username, email, secret string) (AuthResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)

	if username == "" {
		return AuthResult{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if len(secret) < minSecretLength {
		return AuthResult{}, fmt.Errorf("%w: secret must be at least %d characters", ErrValidation, minSecretLength)
	}
	if len(secret) > maxSecretLength {
		return AuthResult{}, fmt.Errorf("%w: secret must be at most %d characters", ErrValidation, maxSecretLength)
	}

	for _, identifier := range []string{username, email} {
		err := s.callStore(ctx, func(ctx context.Context) error {
			_, err := s.repo.FindByUsernameOrEmail(ctx, identifier)
			return err
		})
		switch {
		case err == nil:
			return AuthResult{}, ErrAlreadyExists
		case errors.Is(err, ErrIdentityNotFound):
		default:
			return AuthResult{}, err
		}
	}

	credentialHash, err := s.hasher.Hash(secret)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash secret: %w", err)
	}

	var created Identity
	err = s.callStore(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.Create(ctx, Identity{
			Username:       username,
			Email:          email,
			CredentialHash: credentialHash,
			Active:         true,
		})
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}

	pair, err := s.issuePair(created.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.auditInfo("identity_registered", map[string]any{"identity_id": created.ID})
	return AuthResult{TokenPair: pair, Identity: created.Summary()}, nil
}

// Login verifies the secret for the identity matching identifier. Unknown
// identifier, inactive identity, active lockout, and wrong secret all
// collapse into ErrInvalidCredentials; the distinctions exist only in the
// audit log. Every attempt against a known identity writes its lockout
// state, success or not.
func (s *Service) Login(ctx context.Context, identifier, secret string) (AuthResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || secret == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	now := s.now()

	var identity Identity
	err := s.callStore(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.repo.FindByUsernameOrEmail(ctx, identifier)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			s.hasher.Verify(secret, s.dummyHash)
			s.audit("login_failed", map[string]any{"reason": "unknown_identifier"})
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if identity.Locked(now) {
		if _, rerr := s.recordFailure(ctx, identity.ID, now); rerr != nil {
			return AuthResult{}, rerr
		}
		s.audit("login_failed", map[string]any{
			"reason":       "locked",
			"identity_id":  identity.ID,
			"locked_until": identity.LockedUntil.Format(time.RFC3339),
		})
		return AuthResult{}, ErrInvalidCredentials
	}

	if !identity.Active {
		s.hasher.Verify(secret, s.dummyHash)
		if _, rerr := s.recordFailure(ctx, identity.ID, now); rerr != nil {
			return AuthResult{}, rerr
		}
		s.audit("login_failed", map[string]any{"reason": "inactive", "identity_id": identity.ID})
		return AuthResult{}, ErrInvalidCredentials
	}

	if !s.hasher.Verify(secret, identity.CredentialHash) {
		updated, rerr := s.recordFailure(ctx, identity.ID, now)
		if rerr != nil {
			return AuthResult{}, rerr
		}
		s.audit("login_failed", map[string]any{
			"reason":        "bad_secret",
			"identity_id":   identity.ID,
			"failure_count": updated.FailureCount,
			"locked":        updated.Locked(now),
		})
		return AuthResult{}, ErrInvalidCredentials
	}

	var updated Identity
	err = s.callStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.RecordLoginSuccess(ctx, identity.ID, now)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}

	pair, err := s.issuePair(updated.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.auditInfo("login_succeeded", map[string]any{"identity_id": updated.ID})
	return AuthResult{TokenPair: pair, Identity: updated.Summary()}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token comes back unchanged: rotating a self-contained token
// would not invalidate the old one, so rotation here would only pretend.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	subjectID, err := s.codec.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		s.audit("refresh_rejected", map[string]any{"reason": err.Error()})
		return TokenPair{}, ErrInvalidCredentials
	}

	var identity Identity
	err = s.callStore(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.repo.FindByID(ctx, subjectID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			s.audit("refresh_rejected", map[string]any{"reason": "unknown_subject", "subject_id": subjectID})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !identity.Active {
		s.audit("refresh_rejected", map[string]any{"reason": "inactive", "identity_id": identity.ID})
		return TokenPair{}, ErrInvalidCredentials
	}

	access, err := s.codec.IssueAccess(identity.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

// VerifyAccessToken resolves an access token to its subject id. No store
// access; the token is self-contained.
func (s *Service) VerifyAccessToken(token string) (string, error) {
	subjectID, err := s.codec.Verify(strings.TrimSpace(token), TokenKindAccess)
	if err != nil {
		s.audit("access_token_rejected", map[string]any{"reason": err.Error()})
		return "", ErrInvalidCredentials
	}
	return subjectID, nil
}

// Identity returns the summary for an authenticated subject id.
func (s *Service) Identity(ctx context.Context, id string) (IdentitySummary, error) {
	var identity Identity
	err := s.callStore(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return IdentitySummary{}, ErrInvalidCredentials
		}
		return IdentitySummary{}, err
	}
	if !identity.Active {
		return IdentitySummary{}, ErrInvalidCredentials
	}
	return identity.Summary(), nil
}

func (s *Service) issuePair(subjectID string) (TokenPair, error) {
	access, err := s.codec.IssueAccess(subjectID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.IssueRefresh(subjectID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, id string, now time.Time) (Identity, error) {
	var updated Identity
	err := s.callStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.RecordLoginFailure(ctx, id, s.lockout, now)
		return err
	})
	return updated, err
}

func (s *Service) callStore(ctx context.Context, op func(context.Context) error) error {
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		return op(ctx)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return ErrServiceUnavailable
	}
	return err
}

func (s *Service) audit(event string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Warn(event, fields)
	}
}

func (s *Service) auditInfo(event string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Info(event, fields)
	}
}
