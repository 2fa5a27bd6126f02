// Package resilience provides failure classification, retry and circuit
// breaking for connector calls and evidence sink writes.
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets one trial call through at a time.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Zero or less disables the breaker.
	FailureThreshold int
	ResetTimeout     time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(name string, from, to CircuitState)
}

// CircuitBreaker guards a single connector.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named connector.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Allow returns ErrCircuitOpen when calls must be short-circuited.
// A nil breaker always allows.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return eris.Wrapf(ErrCircuitOpen, "connector %s", cb.name)
		}
		cb.transition(CircuitHalfOpen)
		cb.trialInFlight = true
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return eris.Wrapf(ErrCircuitOpen, "connector %s: trial call in flight", cb.name)
		}
		cb.trialInFlight = true
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false

	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state != CircuitClosed {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.consecutiveFailures++
	if cb.state == CircuitHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.nowFunc()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// Breakers holds one circuit breaker per connector. The set is fixed at
// construction, so lookups need no locking.
type Breakers map[string]*CircuitBreaker

// NewBreakers creates a breaker for every named connector. It returns nil
// when the config disables breaking.
func NewBreakers(names []string, cfg CircuitBreakerConfig) Breakers {
	if cfg.FailureThreshold <= 0 {
		return nil
	}
	b := make(Breakers, len(names))
	for _, n := range names {
		b[n] = NewCircuitBreaker(n, cfg)
	}
	return b
}

// NotClosed returns the names of connectors whose breaker is open or
// half-open, sorted.
func (b Breakers) NotClosed() []string {
	var names []string
	for name, cb := range b {
		if cb.State() != CircuitClosed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Get returns the breaker for name, or nil.
func (b Breakers) Get(name string) *CircuitBreaker {
	if b == nil {
		return nil
	}
	return b[name]
}
