package audio

import "time"

// Frame represents a single frame of audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the input
// device, classified by VAD, scanned by the wake-word engine, and buffered
// into capture sessions.
type Frame struct {
	// Seq is the frame's position in the source stream. The source assigns
	// sequence numbers monotonically; consumers rely on them to detect gaps
	// and to reason about ordering without touching the wall clock.
	Seq uint64

	// PCM audio data, 16-bit little-endian samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for wake-word and STT models).
	SampleRate int

	// Channels: 1 for mono (the pipeline format), 2 for stereo devices
	// before conversion.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame, derived from its
// sample count and format. Returns 0 for frames with an invalid format.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Samples returns the number of samples per channel in the frame.
func (f Frame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}
