// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock is safe for concurrent use. Tests script the stream by calling
// [Source.Emit] or [Source.EmitPCM] and terminate it with [Source.Close]
// (clean shutdown) or [Source.Fail] (simulated device loss).
//
// Typical usage:
//
//	src := mock.NewSource(16)
//	src.EmitPCM(make([]byte, 640), 16000)
//	src.Fail(audio.ErrDeviceLost)
//	for frame := range src.Frames() { ... }
//	if err := src.Err(); err != nil { ... }
package mock

import (
	"sync"
	"time"

	"github.com/lodrian/ascolta/pkg/audio"
)

// Source is a scripted implementation of [audio.Source].
type Source struct {
	mu     sync.Mutex
	frames chan audio.Frame
	err    error
	ended  bool

	nextSeq   uint64
	timestamp time.Duration

	// CloseErr is returned by the first call to [Source.Close].
	CloseErr error

	// CloseCallCount records how many times Close was called.
	CloseCallCount int
}

var _ audio.Source = (*Source)(nil)

// NewSource returns a Source whose frame channel holds buffer frames.
func NewSource(buffer int) *Source {
	if buffer < 1 {
		buffer = 1
	}
	return &Source{frames: make(chan audio.Frame, buffer)}
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Err implements [audio.Source].
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Source]. Closes the frame channel on first call.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.ended {
		s.ended = true
		close(s.frames)
	}
	return s.CloseErr
}

// Emit delivers frame as-is. It blocks when the channel buffer is full and
// panics if the stream already ended, mirroring a send on a closed channel.
func (s *Source) Emit(frame audio.Frame) {
	s.frames <- frame
}

// EmitPCM wraps pcm in a mono frame with the next sequence number and an
// accumulated timestamp, delivers it, and returns it for assertions.
func (s *Source) EmitPCM(pcm []byte, sampleRate int) audio.Frame {
	s.mu.Lock()
	frame := audio.Frame{
		Seq:        s.nextSeq,
		Data:       pcm,
		SampleRate: sampleRate,
		Channels:   1,
		Timestamp:  s.timestamp,
	}
	s.nextSeq++
	s.timestamp += frame.Duration()
	s.mu.Unlock()

	s.frames <- frame
	return frame
}

// Fail ends the stream with err: Err returns it and the frame channel closes.
// Calling Fail after the stream ended is a no-op.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.err = err
	s.ended = true
	close(s.frames)
}
