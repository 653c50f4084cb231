package audio

import (
	"math"
	"time"
)

// BytesToInt16 decodes little-endian 16-bit PCM bytes into samples.
// A trailing odd byte is ignored.
func BytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// RMS computes the root-mean-square amplitude of little-endian 16-bit PCM.
// Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// PCMDuration returns the playback duration of byteCount bytes of 16-bit PCM
// at the given format. Returns 0 when the format is invalid.
func PCMDuration(byteCount, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteCount / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// FrameSize returns the byte length of one frame of the given duration in
// 16-bit PCM at the given format, e.g. 20ms at 16kHz mono = 640 bytes.
func FrameSize(d time.Duration, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 || d <= 0 {
		return 0
	}
	samples := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return samples * 2 * channels
}
