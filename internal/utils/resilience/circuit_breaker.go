package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
)

// BreakerState is the circuit's position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig controls a CircuitBreaker. Each dependency gets its own
// breaker instance with its own config; there is no shared global breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit
	ResetTimeout     time.Duration // how long the circuit stays open
	HalfOpenMax      int           // probe calls allowed while half-open
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	return c
}

// CircuitBreaker sheds load from a failing dependency. Closed passes calls
// through and counts consecutive failures; open rejects immediately until
// ResetTimeout elapses; half-open lets a few probes through and closes again
// on success.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu           sync.Mutex
	state        BreakerState
	failures     int
	openedAt     time.Time
	halfOpenBusy int
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs op under the breaker. When the circuit is open the call is
// rejected with apperrors.ErrCircuitOpen without invoking op.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err == nil)
	return err
}

// State reports the circuit's current position.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateOpen:
		return apperrors.ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenBusy >= b.cfg.HalfOpenMax {
			return apperrors.ErrCircuitOpen
		}
		b.halfOpenBusy++
	}
	return nil
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenBusy--
		if success {
			b.state = StateClosed
			b.failures = 0
		} else {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// refreshLocked moves an expired open circuit to half-open.
func (b *CircuitBreaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.halfOpenBusy = 0
	}
}
