// Package mock provides a scripted wake-word spotter for testing.
package mock

import (
	"sync"

	"github.com/lodrian/ascolta/pkg/provider/wake"
)

// Engine is a mock [wake.Engine] whose sessions are scripted by tests.
type Engine struct {
	mu sync.Mutex

	// Session is handed out by NewSession. When nil, each call returns a
	// fresh zero-valued Session instead.
	Session wake.Session
	// NewSessionErr, when set, is returned by every NewSession call.
	NewSessionErr error

	// NewSessionCalls records every NewSession invocation.
	NewSessionCalls []NewSessionCall
}

// NewSessionCall records a single NewSession invocation.
type NewSessionCall struct {
	Cfg wake.Config
}

var _ wake.Engine = (*Engine)(nil)

// NewSession records the call and returns the scripted session.
func (e *Engine) NewSession(cfg wake.Config) (wake.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Reset clears recorded calls.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Session is a mock [wake.Session] that replays scripted detections. Calls
// are recorded so tests can assert on the samples fed.
type Session struct {
	mu sync.Mutex

	// DetectionResult is returned by Feed when DetectionQueue is empty.
	DetectionResult wake.Detection
	// DetectionQueue is consumed one entry per Feed call before falling
	// back to DetectionResult.
	DetectionQueue []wake.Detection
	// FeedErr, when set, is returned by every Feed call.
	FeedErr error
	// CloseErr, when set, is returned by Close.
	CloseErr error

	// FeedCalls records every Feed invocation.
	FeedCalls []FeedCall
	// ResetCallCount counts Reset invocations.
	ResetCallCount int
	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

// FeedCall records a single Feed invocation.
type FeedCall struct {
	// Samples is a copy of the samples fed.
	Samples []int16
}

var _ wake.Session = (*Session)(nil)

// Feed records the call and returns the next scripted detection.
func (s *Session) Feed(samples []int16) (wake.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FeedCalls = append(s.FeedCalls, FeedCall{
		Samples: append([]int16(nil), samples...),
	})
	det := s.DetectionResult
	if len(s.DetectionQueue) > 0 {
		det = s.DetectionQueue[0]
		s.DetectionQueue = s.DetectionQueue[1:]
	}
	return det, s.FeedErr
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close bumps CloseCallCount and returns the scripted CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears recorded calls and counters.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FeedCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}
