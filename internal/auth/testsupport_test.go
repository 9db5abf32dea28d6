package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeClock is a manually advanced time source shared by the service,
// codec, and breaker in tests.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{current: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// memoryRepository implements Repository with a mutex over a map,
// matching the per-record atomicity the contract requires. Setting fail
// makes every call return that error, simulating a down store; calls
// counts how often the store was actually invoked.
type memoryRepository struct {
	mu    sync.Mutex
	byID  map[string]Identity
	fail  error
	calls int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{byID: make(map[string]Identity)}
}

func (r *memoryRepository) setFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *memoryRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *memoryRepository) get(id string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	return identity, ok
}

func (r *memoryRepository) enter() error {
	r.calls++
	return r.fail
}

func (r *memoryRepository) FindByUsernameOrEmail(_ context.Context, identifier string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	for _, identity := range r.byID {
		if identity.Username == identifier || strings.EqualFold(identity.Email, identifier) {
			return identity, nil
		}
	}
	return Identity{}, ErrIdentityNotFound
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	identity, ok := r.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (r *memoryRepository) Create(_ context.Context, identity Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	for _, existing := range r.byID {
		if existing.Username == identity.Username || strings.EqualFold(existing.Email, identity.Email) {
			return Identity{}, ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	identity.ID = uuid.NewString()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	r.byID[identity.ID] = identity
	return identity, nil
}

func (r *memoryRepository) Update(_ context.Context, identity Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	if _, ok := r.byID[identity.ID]; !ok {
		return Identity{}, ErrIdentityNotFound
	}
	identity.UpdatedAt = time.Now().UTC()
	r.byID[identity.ID] = identity
	return identity, nil
}

func (r *memoryRepository) RecordLoginFailure(_ context.Context, id string, policy LockoutPolicy, now time.Time) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	identity, ok := r.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}

	policy.RegisterFailure(&identity, now)
	identity.UpdatedAt = now
	r.byID[id] = identity
	return identity, nil
}

func (r *memoryRepository) RecordLoginSuccess(_ context.Context, id string, now time.Time) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(); err != nil {
		return Identity{}, err
	}

	identity, ok := r.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}

	identity.FailureCount = 0
	identity.LockedUntil = nil
	at := now
	identity.LastAuthenticatedAt = &at
	identity.UpdatedAt = now
	r.byID[id] = identity
	return identity, nil
}
