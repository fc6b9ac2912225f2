package thinker

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is one of the three states a breaker can be in.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig tunes threshold/timeout/probe behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig matches the documented defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, HalfOpenMaxCalls: 1}
}

// CircuitBreaker is a fail-fast guard that opens after repeated upstream
// failures, grounded on original_source/strix/llm/circuit_breaker.py.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig
	now func() time.Time

	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int

	totalCalls, totalFailures, totalSuccesses int
}

// NewCircuitBreaker constructs a breaker starting in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// ErrCircuitOpen is returned by Admit when the breaker is fail-fasting.
type ErrCircuitOpen struct{ RetryAfter time.Duration }

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit open, retry after %s", e.RetryAfter)
}

// Admit checks whether a call may proceed, transitioning open->half_open
// once the recovery timeout has elapsed, and bounding concurrent half-open
// probes to HalfOpenMaxCalls.
func (cb *CircuitBreaker) Admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenInFlight = 0
		} else {
			return &ErrCircuitOpen{RetryAfter: cb.cfg.RecoveryTimeout - cb.now().Sub(cb.openedAt)}
		}
	}

	if cb.state == CircuitHalfOpen {
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxCalls {
			return &ErrCircuitOpen{RetryAfter: cb.cfg.RecoveryTimeout}
		}
		cb.halfOpenInFlight++
	}
	cb.totalCalls++
	return nil
}

// RecordSuccess transitions half_open->closed on the first success and
// resets the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalSuccesses++
	cb.consecutiveFailures = 0
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.halfOpenInFlight = 0
	}
}

// RecordFailure transitions closed->open once consecutive failures reach
// the threshold, and half_open->open on the first probe failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalFailures++

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		cb.halfOpenInFlight = 0
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// TimeUntilRecovery reports how long until an open breaker admits a probe.
func (cb *CircuitBreaker) TimeUntilRecovery() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return 0
	}
	remaining := cb.cfg.RecoveryTimeout - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
