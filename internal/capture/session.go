package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lodrian/ascolta/pkg/audio"
)

// ErrSeqGap indicates a frame arrived out of sequence. The lossless path
// delivers every frame in order, so a gap means the source is broken.
var ErrSeqGap = errors.New("capture: frame sequence gap")

// Session is one capture session's accumulated audio. It is owned
// exclusively by the controller goroutine and never shared; dispatch works
// on an immutable Snapshot.
type Session struct {
	// ID is a UUID assigned at session start.
	ID string

	// Trigger records what opened the session. It can be upgraded from
	// TriggerWakeWord to TriggerManual when a manual intent lands within
	// one frame of the wake.
	Trigger Trigger

	// StartedAt is when the session was opened.
	StartedAt time.Time

	// LastSpeechAt is when the classifier last labeled a frame as speech.
	// Zero until the first speech label.
	LastSpeechAt time.Time

	frames  []audio.Frame
	lastSeq uint64
}

// NewSession opens a session with a fresh UUID.
func NewSession(trigger Trigger, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now,
	}
}

// Append adds one frame. Frames must arrive with contiguous Seq values;
// a gap is rejected and the frame is not stored.
func (s *Session) Append(f audio.Frame) error {
	if len(s.frames) > 0 && f.Seq != s.lastSeq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrSeqGap, s.lastSeq, f.Seq)
	}
	s.frames = append(s.frames, f)
	s.lastSeq = f.Seq
	return nil
}

// FrameCount returns how many frames the session holds.
func (s *Session) FrameCount() int {
	return len(s.frames)
}

// Duration returns the total captured audio duration.
func (s *Session) Duration() time.Duration {
	var d time.Duration
	for _, f := range s.frames {
		d += f.Duration()
	}
	return d
}

// Snapshot returns an immutable copy of the session for dispatch. The
// frame slice is copied so the controller can keep appending, but the
// frame payloads are shared; nothing mutates them after capture.
func (s *Session) Snapshot() Snapshot {
	frames := make([]audio.Frame, len(s.frames))
	copy(frames, s.frames)
	return Snapshot{
		ID:        s.ID,
		Trigger:   s.Trigger,
		StartedAt: s.StartedAt,
		Frames:    frames,
	}
}

// Snapshot is a session frozen for dispatch.
type Snapshot struct {
	ID        string
	Trigger   Trigger
	StartedAt time.Time
	Frames    []audio.Frame
}

// PCM concatenates the frames into one contiguous buffer.
func (s Snapshot) PCM() []byte {
	var n int
	for _, f := range s.Frames {
		n += len(f.Data)
	}
	buf := make([]byte, 0, n)
	for _, f := range s.Frames {
		buf = append(buf, f.Data...)
	}
	return buf
}

// Duration returns the total audio duration of the snapshot.
func (s Snapshot) Duration() time.Duration {
	var d time.Duration
	for _, f := range s.Frames {
		d += f.Duration()
	}
	return d
}

// SampleRate returns the capture sample rate, or zero for an empty snapshot.
func (s Snapshot) SampleRate() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].SampleRate
}

// Channels returns the channel count, or zero for an empty snapshot.
func (s Snapshot) Channels() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].Channels
}
