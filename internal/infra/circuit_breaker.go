package infra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while pricing calls are suspended.
var ErrCircuitOpen = errors.New("pricing service unavailable: circuit open")

// State is the breaker's view of the pricing service.
type State int

const (
	StateClosed   State = iota // service healthy, calls pass
	StateOpen                  // service failing, calls rejected locally
	StateHalfOpen              // trial calls decide whether it recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops sessions from hammering a pricing daemon that keeps
// failing. While open, converter and estimate lookups fail fast with
// ErrCircuitOpen; after the cool-down a few trial calls decide whether
// traffic resumes.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex
	now  func() time.Time

	state       State
	failures    int
	trials      int
	lastFailure time.Time

	failureThreshold int // consecutive failed calls before suspending
	successThreshold int // successful trials before resuming
	coolDown         time.Duration
}

type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig is used when the config file leaves the
// breaker section out.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		now:              time.Now,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		coolDown:         cfg.Timeout,
	}
}

// Execute runs one pricing call if the service is not suspended and
// records its outcome. A call abandoned by its caller is not held against
// the service.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
	default:
		cb.RecordFailure()
	}
	return err
}

// Allow reports whether a pricing call may go out now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) <= cb.coolDown {
			return false
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		slog.Info("Pricing service cool-down over, sending trial calls",
			slog.String("service", cb.name))
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.trials++
		if cb.trials >= cb.successThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.trials = 0
			slog.Info("Pricing service recovered, resuming calls",
				slog.String("service", cb.name))
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			slog.Warn("Pricing service failing, suspending calls",
				slog.String("service", cb.name),
				slog.Int("failures", cb.failures),
				slog.Duration("cool_down", cb.coolDown))
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.trials = 0
		slog.Warn("Pricing service trial call failed, suspending again",
			slog.String("service", cb.name))
	}
}

// GetState feeds the /api/status breaker field.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
