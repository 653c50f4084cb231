// Package resilience provides circuit breaker and provider failover primitives
// for the transcription dispatch path.
//
// The building blocks compose: [CircuitBreaker] implements the classic
// three-state machine (closed → open → half-open) that protects dispatch from
// cascading failures of a cloud backend. [FallbackGroup] composes multiple
// instances of any provider type with per-entry circuit breakers so that a
// failing primary is automatically bypassed in favour of healthy fallbacks,
// and [STTChain] builds the speech-to-text failover chain on top of it.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// rejects a call without invoking the wrapped function.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the lifecycle position of a [CircuitBreaker].
type State int

const (
	// StateClosed lets all calls through.
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls to test
	// whether the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. The zero value is usable:
// every field has a default.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and state reports.
	Name string
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before it starts
	// probing the backend again. Defaults to 30 seconds.
	ResetTimeout time.Duration
	// HalfOpenMax is the number of successful probes required to close
	// the breaker, and equally the number of probe slots handed out per
	// half-open round. Defaults to 3.
	HalfOpenMax int
}

// CircuitBreaker guards calls to a single backend. All transitions happen on
// the calling goroutine under mu; there is no background timer.
type CircuitBreaker struct {
	name     string
	tripAt   int
	cooldown time.Duration
	quota    int

	mu       sync.Mutex
	state    State
	strikes  int       // consecutive failures while closed
	openedAt time.Time // when the breaker last tripped
	probes   int       // probe slots handed out this half-open round
	wins     int       // probes that came back healthy
}

// NewCircuitBreaker builds a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:     cfg.Name,
		tripAt:   cfg.MaxFailures,
		cooldown: cfg.ResetTimeout,
		quota:    cfg.HalfOpenMax,
	}
}

// Execute runs fn under the breaker's supervision. When the breaker is open
// the call is rejected with [ErrCircuitOpen] and fn is never invoked;
// otherwise fn's own error is returned unchanged.
//
// A failure observed while ctx is already done is not charged against the
// backend: the caller abandoned the call, which proves nothing about the
// backend's health.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	callErr := fn()
	cb.settle(probe, callErr, ctx.Err() != nil)
	return callErr
}

// admit decides whether a call may proceed. probe is true when the breaker is
// half-open and the call occupies one of the probe slots.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		// Cooldown served: start a fresh probing round.
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.wins = 0
		slog.Info("circuit breaker probing backend",
			"name", cb.name,
			"cooldown", cb.cooldown)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.quota {
			// Every slot is out with a verdict still pending.
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, callErr error, canceled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case callErr == nil:
		if probe && cb.state == StateHalfOpen {
			cb.wins++
			if cb.wins >= cb.quota {
				cb.state = StateClosed
				cb.strikes = 0
				slog.Info("circuit breaker closed, backend recovered",
					"name", cb.name,
					"probes", cb.wins)
			}
			return
		}
		cb.strikes = 0

	case canceled:
		// The caller walked away mid-call, so return the probe slot
		// and charge nothing.
		if probe {
			cb.probes--
		}

	default:
		if probe && cb.state == StateHalfOpen {
			cb.trip("probe failed")
			return
		}
		cb.strikes++
		if cb.state == StateClosed && cb.strikes >= cb.tripAt {
			cb.trip("failure threshold reached")
		}
	}
}

// trip opens the breaker and stamps the cooldown clock. Callers hold mu.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.strikes = 0
	slog.Warn("circuit breaker opened",
		"name", cb.name,
		"reason", reason,
		"cooldown", cb.cooldown)
}

// State reports the breaker's position. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen] even though the transition itself happens
// on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed and discards all bookkeeping. It
// exists for operator intervention, not for use on the dispatch path.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.strikes = 0
	cb.probes = 0
	cb.wins = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
