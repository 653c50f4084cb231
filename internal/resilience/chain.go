package resilience

import (
	"context"

	"github.com/lodrian/ascolta/pkg/provider/stt"
)

// STTChain implements [stt.Provider] with automatic failover across multiple
// transcription backends. Each backend sits behind its own circuit breaker, so
// a rate-limited or unreachable primary is bypassed without stalling dispatch.
type STTChain struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain] with primary as the preferred backend.
func NewSTTChain(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTChain {
	return &STTChain{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend. Fallbacks are
// tried in registration order, after the primary.
func (c *STTChain) AddFallback(name string, provider stt.Provider) {
	c.group.AddFallback(name, provider)
}

// Transcribe sends the segment to the first healthy backend. When a dispatch
// is canceled mid-call the chain stops immediately: captured audio is never
// replayed against further backends after the user has aborted.
func (c *STTChain) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, c.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, seg)
	})
}

// BackendStates reports the breaker state of every registered backend, keyed
// by name.
func (c *STTChain) BackendStates() map[string]State {
	return c.group.States()
}
