// Package mock provides a scripted voice activity detector for testing.
package mock

import (
	"sync"
	"time"

	"github.com/lodrian/ascolta/pkg/provider/vad"
)

// Engine is a mock [vad.Engine] whose sessions are scripted by tests.
type Engine struct {
	mu sync.Mutex

	// Session is handed out by NewSession. When nil, each call returns a
	// fresh zero-valued Session instead.
	Session vad.Session
	// NewSessionErr, when set, is returned by every NewSession call.
	NewSessionErr error

	// NewSessionCalls records every NewSession invocation.
	NewSessionCalls []NewSessionCall
}

// NewSessionCall records a single NewSession invocation.
type NewSessionCall struct {
	Cfg vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns the scripted session.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
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

// Session is a mock [vad.Session] that replays scripted events. Calls are
// recorded so tests can assert on the frames submitted.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by ProcessFrame when EventQueue is empty.
	EventResult vad.Event
	// EventQueue is consumed one entry per ProcessFrame call before
	// falling back to EventResult.
	EventQueue []vad.Event
	// ProcessFrameErr, when set, is returned by every ProcessFrame call.
	ProcessFrameErr error
	// ProcessDelay makes ProcessFrame sleep before responding, to
	// simulate a slow model.
	ProcessDelay time.Duration
	// CloseErr, when set, is returned by Close.
	CloseErr error

	// ProcessFrameCalls records every ProcessFrame invocation.
	ProcessFrameCalls []ProcessFrameCall
	// ResetCallCount counts Reset invocations.
	ResetCallCount int
	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

// ProcessFrameCall records a single ProcessFrame invocation.
type ProcessFrameCall struct {
	// Frame is a copy of the frame bytes.
	Frame []byte
}

var _ vad.Session = (*Session)(nil)

// ProcessFrame records the call and returns the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{
		Frame: append([]byte(nil), frame...),
	})
	ev := s.EventResult
	if len(s.EventQueue) > 0 {
		ev = s.EventQueue[0]
		s.EventQueue = s.EventQueue[1:]
	}
	delay := s.ProcessDelay
	err := s.ProcessFrameErr
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return ev, err
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
	s.ProcessFrameCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}
