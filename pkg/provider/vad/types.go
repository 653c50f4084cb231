package vad

// EventType classifies a single frame of audio.
type EventType int

const (
	// SpeechStart marks the first frame of a new speech run.
	SpeechStart EventType = iota

	// SpeechContinue marks a frame inside an ongoing speech run.
	SpeechContinue

	// SpeechEnd marks the first silent frame after a speech run.
	SpeechEnd

	// Silence marks a frame with no speech activity.
	Silence
)

func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech-start"
	case SpeechContinue:
		return "speech-continue"
	case SpeechEnd:
		return "speech-end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}

// Event is the detection verdict for one audio frame.
type Event struct {
	// Type is the frame classification.
	Type EventType

	// Probability is the engine's speech score for the frame in [0.0, 1.0].
	// Threshold-style engines report their smoothed energy ratio here.
	Probability float64
}
