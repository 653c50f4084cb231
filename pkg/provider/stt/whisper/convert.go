package whisper

import "github.com/lodrian/ascolta/pkg/audio"

// pcmToFloat32 converts 16-bit little-endian PCM to the normalised
// [-1.0, 1.0] float32 samples whisper.cpp expects. A trailing odd byte is
// ignored.
func pcmToFloat32(pcm []byte) []float32 {
	samples := audio.BytesToInt16(pcm)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
