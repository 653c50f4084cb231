// Package mock provides a mock speech-to-text provider for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lodrian/ascolta/pkg/provider/stt"
)

// Provider is a mock [stt.Provider] whose results are scripted by tests.
// Calls are recorded so tests can assert on dispatched segments.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe when ResultQueue is empty.
	TranscribeResult stt.Transcript
	// ResultQueue is consumed one entry per Transcribe call before
	// falling back to TranscribeResult.
	ResultQueue []stt.Transcript
	// TranscribeErr, when set, is returned by every Transcribe call.
	TranscribeErr error
	// Delay makes Transcribe block before responding. The call still
	// honors context cancellation while waiting, which lets tests
	// exercise in-flight abort paths.
	Delay time.Duration

	// TranscribeCalls records every Transcribe invocation.
	TranscribeCalls []TranscribeCall
}

// TranscribeCall records a single Transcribe invocation.
type TranscribeCall struct {
	Ctx context.Context
	Seg stt.Segment
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Seg: seg})
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TranscribeErr != nil {
		return stt.Transcript{}, p.TranscribeErr
	}
	if len(p.ResultQueue) > 0 {
		result := p.ResultQueue[0]
		p.ResultQueue = p.ResultQueue[1:]
		return result, nil
	}
	return p.TranscribeResult, nil
}

// CallCount returns the number of Transcribe invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and queued results.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.ResultQueue = nil
	p.TranscribeErr = nil
	p.Delay = 0
}
