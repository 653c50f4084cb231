// Package wake defines the interface between the capture pipeline and
// wake-word spotting backends.
//
// A wake [Engine] wraps a keyword-spotting model (e.g. Picovoice Porcupine)
// and surfaces it as a stateful, per-stream [Session]. Sessions accept PCM in
// whatever frame size the pipeline produces and re-buffer internally to the
// model's native frame length, so callers never need to know it.
//
// Detection results are raw model output. Debouncing, cooldown windows, and
// confidence gating live in the capture layer, which keeps those policies
// uniform across engines.
package wake

// Config holds the parameters for a wake-word session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the PCM passed to Feed.
	// Model-based engines typically require 16000 and reject anything else.
	SampleRate int

	// Sensitivity trades miss rate against false activations, range [0.0, 1.0].
	// Higher values detect more readily. Applied to every configured phrase.
	// Engines that cannot honor it may ignore it. Typical: 0.5.
	Sensitivity float32
}

// Session is one stream's spotting state: the re-buffered samples and any
// partial match the model is tracking. A Session belongs to a single
// goroutine unless the implementation says otherwise.
type Session interface {
	// Feed consumes the next samples from the stream and reports the first
	// detection found in them, if any. Samples are buffered across calls, so
	// arbitrary frame sizes are fine. A zero-valued Detection with Hit=false
	// means no phrase was spotted.
	//
	// Called synchronously in the audio pipeline loop; it must not block on
	// anything but the model itself.
	Feed(samples []int16) (Detection, error)

	// Reset drops buffered samples and any partial match state. Use it when
	// the stream restarts.
	Reset()

	// Close releases the model resources held by the session. After Close,
	// Feed must return an error. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine creates spotting sessions. Implementations must allow concurrent
// NewSession calls; the sessions themselves are independent.
type Engine interface {
	// NewSession opens a session with the given parameters. It fails when
	// the configuration is invalid, the model assets are missing, or the
	// engine cannot allocate session resources.
	NewSession(cfg Config) (Session, error)
}
