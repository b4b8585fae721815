// Package resilience provides fault-tolerance primitives used around
// expansion modules and remote lexicon fetches: a circuit breaker,
// exponential-backoff retry, and a context-based timeout wrapper.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// ErrCircuitOpen is returned instead of calling a module whose breaker is
// open or whose half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig controls when a breaker trips and how it probes for
// recovery. Zero values take the defaults: 5 failures, 30s, 1 probe.
//
// IsNeutral picks out errors that say nothing about the guarded module,
// such as the caller going away. They leave the state and the failure count
// unchanged. The default matches context.Canceled and a caller deadline
// (context.DeadlineExceeded not wrapped in ErrTimeout). OnStateChange runs
// after every transition, outside the breaker lock.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsNeutral           func(error) bool
	OnStateChange       func(name string, to State)
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.IsNeutral == nil {
		c.IsNeutral = CallerGone
	}
	return c
}

// CallerGone reports whether err comes from the caller's context rather than
// from the callee: a cancellation, or a deadline that WithTimeout did not
// attribute to the callee.
func CallerGone(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout)
}

// CircuitBreaker guards one expansion module. It opens after
// FailureThreshold consecutive failures, rejects calls for ResetTimeout,
// then lets HalfOpenMaxRequests probes through. One successful probe
// closes it again; a failed probe reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "module", name),
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn unless the breaker rejects it, and feeds the outcome
// back into the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and forgets its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.moveTo(StateClosed)
	cb.mu.Unlock()
	cb.logger.Info("circuit reset")
	cb.announce(changed, StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	changed := false
	var err error
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			err = fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait)
			break
		}
		changed = cb.moveTo(StateHalfOpen)
		cb.probes = 1
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			err = fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
			break
		}
		cb.probes++
	}
	cb.mu.Unlock()
	cb.announce(changed, StateHalfOpen)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	if err != nil && cb.cfg.IsNeutral(err) {
		// free the half-open slot for the next call
		if cb.state == StateHalfOpen && cb.probes > 0 {
			cb.probes--
		}
		cb.mu.Unlock()
		return
	}
	to := cb.state
	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			to = StateOpen
		}
	} else {
		cb.failures = 0
		to = StateClosed
	}
	changed := cb.moveTo(to)
	failures := cb.failures
	cb.mu.Unlock()

	if changed {
		switch to {
		case StateOpen:
			cb.logger.Warn("circuit opened", "consecutive_failures", failures, "cooldown", cb.cfg.ResetTimeout)
		case StateClosed:
			cb.logger.Info("circuit closed after successful probe")
		}
	}
	cb.announce(changed, to)
}

// moveTo switches state with mu held and reports whether it changed.
func (cb *CircuitBreaker) moveTo(to State) bool {
	if cb.state == to {
		return false
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
		cb.probes = 0
	case StateClosed:
		cb.failures = 0
		cb.probes = 0
	}
	return true
}

func (cb *CircuitBreaker) announce(changed bool, to State) {
	if changed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
