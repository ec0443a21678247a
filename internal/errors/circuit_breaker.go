package errors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docstream/internal/logging"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed - normal operation, requests allowed
	StateClosed CircuitState = iota
	// StateOpen - failing, requests blocked
	StateOpen
	// StateHalfOpen - testing if the backend recovered
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
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures to open the circuit (default: 5)
	SuccessThreshold int           // consecutive successes in half-open to close it (default: 2)
	Timeout          time.Duration // wait before attempting half-open (default: 30s)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards the backend request path. It never retries on the
// caller's behalf; it only fails fast while the backend is known-unhealthy.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger

	mu              sync.RWMutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logging.NewComponentLogger("circuit-breaker"),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs a function with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Mark(err)
	return err
}

// Allow checks whether a request can proceed under the circuit breaker.
// Callers that need to inspect responses use Allow/Mark instead of Execute.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
			cb.logger.Info("[%s] circuit breaker transitioning to half-open", cb.name)
			return nil
		}
		return &TransportError{
			Err: fmt.Errorf("circuit breaker open for %s", cb.name),
			Detail: fmt.Sprintf("backend temporarily unavailable after repeated failures, next attempt in %s",
				(cb.config.Timeout - time.Since(cb.lastFailureTime)).Round(time.Second)),
		}
	case StateHalfOpen:
		return nil
	default:
		return fmt.Errorf("unknown circuit breaker state: %v", cb.state)
	}
}

// Mark records a request outcome for the circuit breaker.
// Pass nil to mark success, or a non-nil error to record failure.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
			cb.logger.Info("[%s] circuit breaker closed (backend recovered)", cb.name)
		}
	case StateOpen:
		cb.logger.Warn("[%s] unexpected success in open state", cb.name)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
			cb.logger.Warn("[%s] circuit breaker opened (too many failures)", cb.name)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.successCount = 0
		cb.logger.Warn("[%s] circuit breaker reopened (test failed)", cb.name)
	case StateOpen:
	}
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	cb.state = newState
	cb.lastStateChange = time.Now()
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastStateChange = time.Now()
}
