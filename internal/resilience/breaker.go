// Package resilience provides a circuit breaker for calls to an
// unreliable dependency. The breaker rejects calls outright while the
// dependency is considered down, so a failing store is not hammered by
// every inbound request.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without invoking
// the wrapped operation.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold       = 5
	defaultRecoveryTimeout = 60 * time.Second
)

type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker.
	Threshold int
	// RecoveryTimeout is how long the breaker stays open before granting
	// a single trial call.
	RecoveryTimeout time.Duration
	// Ignore marks errors that are business outcomes of the wrapped
	// operation, not dependency failures. Ignored errors pass through
	// without touching the failure count.
	Ignore func(error) bool
	// Clock overrides the time source. Test hook.
	Clock func() time.Time
}

// Breaker guards an operation with the closed/open/half-open state
// machine. The {state, failures, openedAt} triple is owned by one mutex;
// transitions are checked lazily on call, there is no background timer.
type Breaker struct {
	threshold       int
	recoveryTimeout time.Duration
	ignore          func(error) bool
	now             func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func New(settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = defaultThreshold
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = defaultRecoveryTimeout
	}
	if settings.Clock == nil {
		settings.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Breaker{
		threshold:       settings.Threshold,
		recoveryTimeout: settings.RecoveryTimeout,
		ignore:          settings.Ignore,
		now:             settings.Clock,
	}
}

// Do runs op under the breaker. While open it returns ErrOpen without
// invoking op. After the recovery timeout exactly one caller is granted a
// half-open trial; concurrent callers are rejected as if still open.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Before(b.openedAt.Add(b.recoveryTimeout)) {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	failed := err != nil
	if failed && b.ignore != nil && b.ignore(err) {
		failed = false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.state = StateOpen
			b.openedAt = b.now()
			return
		}
		b.state = StateClosed
		b.failures = 0
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateOpen:
		// A straggler from before the breaker opened; its outcome is
		// already accounted for.
	}
}
