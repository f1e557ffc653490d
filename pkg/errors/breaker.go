package errors

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = New(503, "Circuit breaker is open")

// CircuitBreakerConfig contains configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name         string        `yaml:"name"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	Logger       *logrus.Logger
}

// CircuitBreaker stops calling a failing backend for ResetTimeout after
// MaxFailures consecutive failures, then lets a single probe through.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	logger       *logrus.Logger

	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:         config.Name,
		maxFailures:  config.MaxFailures,
		resetTimeout: config.ResetTimeout,
		logger:       config.Logger,
		now:          time.Now,
	}
}

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		return true
	case StateHalfOpen:
		// one probe at a time
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	cb.state = newState

	if cb.logger != nil && oldState != newState {
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"old_state":       oldState.String(),
			"new_state":       newState.String(),
			"failures":        cb.failures,
		}).Info("Circuit breaker state changed")
	}
}
