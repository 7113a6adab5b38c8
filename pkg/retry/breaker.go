package retry

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker is open and the
// recovery timeout has not yet passed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker rejects calls to a dependency after threshold consecutive
// failures and lets a probe through once the recovery timeout has elapsed.
type CircuitBreaker struct {
	threshold int
	recovery  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func NewCircuitBreaker(threshold int, recovery time.Duration, logger *slog.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		recovery:  recovery,
		logger:    logger,
		now:       time.Now,
	}
}

// Call runs fn unless the breaker is open. A success closes the breaker
// and clears the failure count; a failure at or past the threshold opens
// it. The failure count is not cleared when a probe is admitted, so a
// failed probe reopens the breaker immediately.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.recovery {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.logger.Info("Circuit breaker half-open, probing")
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.failures >= cb.threshold && cb.state != StateOpen {
			cb.state = StateOpen
			cb.logger.Warn("Circuit breaker opened", "failures", cb.failures)
		}
		return err
	}
	cb.failures = 0
	if cb.state != StateClosed {
		cb.state = StateClosed
		cb.logger.Info("Circuit breaker closed")
	}
	return nil
}

// State reports the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
