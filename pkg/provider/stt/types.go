package stt

import "time"

// Transcript is the transcription of one captured audio segment.
type Transcript struct {
	// Text is what was said.
	Text string

	// Confidence is the provider's overall score in [0.0, 1.0], zero when
	// the provider reports none.
	Confidence float64

	// Language is the BCP-47 tag the provider detected or was told to use.
	// Empty when unreported.
	Language string

	// Words carries per-word timing and confidence for providers that emit
	// it (ElevenLabs); nil otherwise.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail is one word's slice of the segment timeline.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
