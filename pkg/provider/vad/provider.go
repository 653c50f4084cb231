// Package vad defines the interface between the capture pipeline and voice
// activity detection backends.
//
// An [Engine] is a detector factory: each capture stream opens its own
// [Session], which carries the per-stream state (noise floor, smoothing
// history) a detector accumulates while classifying frames. Sessions are
// synchronous — ProcessFrame returns a verdict for the frame it was handed,
// which is what the silence classifier needs to time out a capture.
package vad

// Config carries the per-session detector parameters.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of the frames the session
	// will see. Must match the capture pipeline's rate.
	SampleRate int

	// FrameSizeMs is the frame duration in milliseconds. Detectors operate
	// on fixed-size frames; ProcessFrame rejects frames of any other size.
	FrameSizeMs int

	// SpeechThreshold is the score at or above which a frame counts as
	// speech, in [0.0, 1.0]. Raising it trades missed quiet speech for
	// fewer false starts.
	SpeechThreshold float64

	// SilenceThreshold is the score below which an active speech run is
	// considered over, in [0.0, 1.0]. Keep it at or below SpeechThreshold;
	// the gap between the two is the hysteresis band.
	SilenceThreshold float64
}

// Session is one stream's view of a detector. A Session accumulates state
// across frames and is not safe for concurrent use unless the implementation
// says otherwise.
type Session interface {
	// ProcessFrame classifies one frame of raw little-endian PCM at the
	// configured sample rate and frame size. It must not block: the caller
	// is the capture loop itself.
	ProcessFrame(frame []byte) (Event, error)

	// Reset discards accumulated state without closing the session, for
	// when the stream is interrupted and stale history would otherwise leak
	// into the next segment.
	Reset()

	// Close releases the session's resources. Closing twice is safe.
	Close() error
}

// Engine creates detector sessions. Implementations must allow concurrent
// NewSession calls; the sessions themselves are independent.
type Engine interface {
	// NewSession opens a session with the given parameters. It fails on
	// configurations the backend cannot honour, such as an unsupported
	// sample rate or thresholds outside [0.0, 1.0].
	NewSession(cfg Config) (Session, error)
}
