package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// tripBreaker drives cb into the open state with consecutive failures.
func tripBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for range failures {
		_ = cb.Execute(context.Background(), func() error { return errBackend })
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after %d failures = %v, want open", failures, got)
	}
}

func TestCircuitBreaker_DefaultsApply(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt"})
	if cb.tripAt != 5 {
		t.Errorf("tripAt = %d, want 5", cb.tripAt)
	}
	if cb.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cb.cooldown)
	}
	if cb.quota != 3 {
		t.Errorf("quota = %d, want 3", cb.quota)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
}

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	called := false
	if err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if !called {
		t.Fatal("fn was not invoked")
	}

	// Backend errors come back unchanged.
	err := cb.Execute(context.Background(), func() error { return errBackend })
	if !errors.Is(err, errBackend) {
		t.Fatalf("Execute() = %v, want errBackend", err)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	tripBreaker(t, cb, 3)

	// The open breaker rejects without touching the backend.
	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn was invoked despite open breaker")
	}
}

func TestCircuitBreaker_SuccessClearsStrikes(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	fail := func() error { return errBackend }
	ok := func() error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after a success", got)
	}

	// The counter restarted, so two more failures are not enough.
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after 2 of 3 failures", got)
	}
}

func TestCircuitBreaker_CanceledCallsCarryNoVerdict(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := range 5 {
		err := cb.Execute(ctx, func() error { return ctx.Err() })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: err = %v, want context.Canceled", i, err)
		}
	}

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after canceled calls", got)
	}
}

func TestCircuitBreaker_CooldownEntersProbing(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	tripBreaker(t, cb, 2)

	time.Sleep(15 * time.Millisecond)

	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", got)
	}
}

func TestCircuitBreaker_ProbesCloseTheBreaker(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	tripBreaker(t, cb, 2)

	time.Sleep(15 * time.Millisecond)

	for i := range 2 {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("probe %d: Execute() = %v, want nil", i, err)
		}
	}

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	tripBreaker(t, cb, 2)

	time.Sleep(15 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return errBackend })
	if !errors.Is(err, errBackend) {
		t.Fatalf("probe error = %v, want errBackend", err)
	}

	// Re-tripping restarts the cooldown, so read the raw state rather
	// than racing the 10ms window through State().
	cb.mu.Lock()
	raw := cb.state
	cb.mu.Unlock()
	if raw != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", raw)
	}
}

func TestCircuitBreaker_ResetRestoresService(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	tripBreaker(t, cb, 2)

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after reset", got)
	}

	called := false
	if err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Execute() after reset = %v", err)
	}
	if !called {
		t.Fatal("fn was not invoked after reset")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
