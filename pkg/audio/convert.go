package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format pairs a sample rate with a channel count.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders the format the way it appears in logs, e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// FormatConverter normalizes device frames to the pipeline format. Capture
// devices that only expose 44.1/48 kHz or stereo inputs go through one of
// these on their way in. Seq and Timestamp pass through untouched so
// converted streams stay gap-checkable. One converter per stream; it is not
// safe for concurrent use.
type FormatConverter struct {
	Target Format

	mismatchOnce sync.Once
	corruptOnce  sync.Once
}

// Convert returns frame in the target format. A frame already in the target
// format is returned as-is, same backing slice. A frame whose byte count is
// not int16-aligned is emptied rather than misdecoded.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		c.corruptOnce.Do(func() {
			slog.Warn("dropping misaligned PCM frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels},
			)
		})
		frame.Data = nil
		frame.SampleRate = c.Target.SampleRate
		frame.Channels = c.Target.Channels
		return frame
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.mismatchOnce.Do(func() {
		slog.Warn("converting capture format",
			"from", Format{frame.SampleRate, frame.Channels},
			"to", c.Target,
		)
	})

	// Downmix before resampling and upmix after, so the resampler always
	// runs on the narrower stream.
	pcm := frame.Data
	channels := frame.Channels
	if channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
		channels = 1
	}
	if frame.SampleRate != c.Target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, frame.SampleRate, c.Target.SampleRate)
		}
	}
	if channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}

	frame.Data = pcm
	frame.SampleRate = c.Target.SampleRate
	frame.Channels = c.Target.Channels
	return frame
}

// ConvertStream converts every frame arriving on in to target, dropping
// frames the converter emptied. The returned channel closes when in closes;
// it inherits in's buffer size.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		var conv FormatConverter
		conv.Target = target
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo duplicates every mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	samples := BytesToInt16(pcm)
	out := make([]int16, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, s, s)
	}
	return Int16ToBytes(out)
}

// StereoToMono averages each L+R pair into one sample. The average of two
// int16 values always fits int16, so no clamping is needed.
func StereoToMono(pcm []byte) []byte {
	samples := BytesToInt16(pcm)
	n := len(samples) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return Int16ToBytes(out)
}

// ResampleMono16 linearly resamples 16-bit mono PCM from srcRate to dstRate.
// Inputs that need no work (equal rates, nonsense rates, less than one
// sample) come back unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	out := resampleInterleaved(BytesToInt16(pcm), 1, srcRate, dstRate)
	if out == nil {
		return nil
	}
	return Int16ToBytes(out)
}

// ResampleStereo16 linearly resamples interleaved 16-bit stereo PCM from
// srcRate to dstRate.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	out := resampleInterleaved(BytesToInt16(pcm), 2, srcRate, dstRate)
	if out == nil {
		return nil
	}
	return Int16ToBytes(out)
}

// resampleInterleaved interpolates between neighbouring source frames,
// holding the final frame at the tail where no right neighbour exists.
func resampleInterleaved(samples []int16, channels, srcRate, dstRate int) []int16 {
	srcFrames := len(samples) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			a := float64(samples[idx*channels+ch])
			b := float64(samples[next*channels+ch])
			out[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}
