// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., ElevenLabs, OpenAI, or
// a local whisper.cpp model) behind a single batch call. The capture pipeline
// finalizes whole utterances before transcription, so there is no streaming
// session to manage: one Segment goes in, one Transcript comes out.
//
// Implementations must be safe for concurrent use; the dispatcher may run
// several transcriptions at once when sessions finalize back to back.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyAudio is returned by Transcribe when the segment contains no audio.
// Providers check this before any network or model work so the caller can
// tell "nothing to send" apart from a transport failure.
var ErrEmptyAudio = errors.New("stt: empty audio segment")

// Segment is one finalized utterance of raw PCM audio.
type Segment struct {
	// PCM is 16-bit little-endian audio data.
	PCM []byte

	// SampleRate in Hz. The pipeline default is 16000.
	SampleRate int

	// Channels is the channel count. 1 for the pipeline format.
	Channels int

	// Language is a BCP-47 hint for recognition (e.g., "en", "pt"). Empty
	// lets the provider auto-detect, if supported.
	Language string

	// Hints are vocabulary the speaker is likely to use (wake phrases, proper
	// nouns). Providers with a biasing mechanism feed them in; others ignore
	// them.
	Hints []string
}

// Duration returns the playback duration of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	samples := len(s.PCM) / 2 / s.Channels
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe converts one finalized segment to text. It blocks until the
	// provider answers, ctx is done, or the provider's own timeout fires —
	// whichever comes first. Cancelling ctx abandons the request best-effort;
	// the provider may have already received the audio.
	//
	// Returns ErrEmptyAudio for a segment with no PCM data.
	Transcribe(ctx context.Context, seg Segment) (Transcript, error)
}
