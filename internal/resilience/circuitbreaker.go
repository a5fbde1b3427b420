// Package resilience provides a circuit breaker for flaky upstream services.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds circuit breaker tuning.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects before probing again.
	Cooldown time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults for a polled
// upstream: open after 5 straight failures, probe after 2 minutes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         2 * time.Minute,
	}
}

// CircuitBreaker tracks consecutive failures of one upstream and short-circuits
// calls while the upstream is considered down.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 2 * time.Minute
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  CircuitClosed,
	}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && time.Since(cb.lastFailure) > cb.config.Cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Allow reports whether a call may proceed. An open breaker past its cooldown
// transitions to half-open and lets one probe through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.config.Cooldown {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess feeds a successful call back into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.successes = 0
		}
	}
}

// RecordFailure feeds a failed call back into the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()
	switch cb.state {
	case CircuitHalfOpen:
		// Probe failed, reopen immediately.
		cb.state = CircuitOpen
		cb.successes = 0
	default:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	}
}

// Do wraps one call: checks admission, runs fn, records the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
