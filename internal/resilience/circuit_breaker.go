package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the breaker's position. The integer values are exported
// to the circuit-breaker gauge, so the order is part of the contract.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without invoking the protected call while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open, call rejected")

// trialQuota is the number of trial calls admitted in half-open state; the
// breaker re-closes only after all of them succeed.
const trialQuota = 3

// CircuitBreaker fails calls fast once a downstream service has failed
// maxFailures times in a row, and trials for recovery after resetTimeout.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu        sync.Mutex
	state     CircuitState
	failures  int
	trials    int
	trialWins int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker named for the service it
// guards.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Call runs fn under the breaker. While open, calls fail immediately with
// ErrCircuitOpen until the reset timeout elapses; the breaker then admits
// up to trialQuota trial calls before deciding to close or re-open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.observe(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.trials = 1
		cb.trialWins = 0
		return true

	case StateHalfOpen:
		if cb.trials >= trialQuota {
			return false
		}
		cb.trials++
		return true
	}
	return false
}

func (cb *CircuitBreaker) observe(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.trialWins++
			if cb.trialWins >= trialQuota {
				cb.state = StateClosed
				cb.failures = 0
			}
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		// One failed trial is enough evidence the service is still down.
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.failures = 0
	cb.trials = 0
	cb.trialWins = 0
}

// State returns the breaker's position, for the metrics gauge.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed, discarding accumulated failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trials = 0
	cb.trialWins = 0
}
