package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] fails or
// sits behind an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker stamped out for each backend
// in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs one provider instance with its dedicated circuit breaker.
type backend[T any] struct {
	name    string
	impl    T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallback instances of the
// same provider type, each behind its own circuit breaker. Calls go to the
// first backend whose breaker admits them; a failure moves on to the next.
//
// Register every backend before first use; afterwards the group is safe for
// concurrent use.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first backend.
// Fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a fallback backend. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, impl T) {
	fg.add(name, impl)
}

func (fg *FallbackGroup[T]) add(name string, impl T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.backends = append(fg.backends, backend[T]{
		name:    name,
		impl:    impl,
		breaker: NewCircuitBreaker(cb),
	})
}

// States reports the breaker state of every backend, keyed by name. The
// health endpoints use this to surface degraded backends.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.backends))
	for i := range fg.backends {
		be := &fg.backends[i]
		out[be.name] = be.breaker.State()
	}
	return out
}

// Execute tries fn against each backend in order until one succeeds. See
// [ExecuteWithResult] for the failover rules.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(impl T) (struct{}, error) {
		return struct{}{}, fn(impl)
	})
	return err
}

// ExecuteWithResult tries fn against each backend in order until one
// succeeds. Backends with an open breaker are skipped, and once ctx is done
// no further backends are tried: an abandoned call must not be replayed
// against another backend. When every backend fails the last error is wrapped
// in [ErrAllFailed].
//
// This is a package-level function because Go does not support method-level
// type parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.backends {
		be := &fg.backends[i]
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		var out R
		err := be.breaker.Execute(ctx, func() error {
			var callErr error
			out, callErr = fn(be.impl)
			return callErr
		})

		switch {
		case err == nil:
			return out, nil
		case ctx.Err() != nil:
			return zero, ctx.Err()
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("backend circuit open, skipping", "backend", be.name)
		default:
			slog.Warn("backend failed, failing over",
				"backend", be.name,
				"error", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
