package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/lodrian/ascolta/pkg/audio"
)

func pcmBytes(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func pcmSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func assertSamples(t *testing.T, got []byte, want ...int16) {
	t.Helper()
	g := pcmSamples(got)
	if len(g) != len(want) {
		t.Fatalf("len = %d samples, want %d", len(g), len(want))
	}
	for i := range want {
		if g[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, g[i], want[i])
		}
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tc := range tests {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("%+v.String() = %q, want %q", tc.f, got, tc.want)
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	assertSamples(t, audio.MonoToStereo(pcmBytes(100, 200, 300)),
		100, 100, 200, 200, 300, 300)
}

func TestMonoToStereo_IgnoresTrailingByte(t *testing.T) {
	t.Parallel()
	in := append(pcmBytes(100, 200), 0xFF)
	assertSamples(t, audio.MonoToStereo(in), 100, 100, 200, 200)
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"averages pairs", []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"full scale stays in range", []int16{32767, 32767}, []int16{32767}},
		{"negative full scale", []int16{-32768, -32768}, []int16{-32768}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertSamples(t, audio.StereoToMono(pcmBytes(tc.in...)), tc.want...)
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	t.Run("same rate unchanged", func(t *testing.T) {
		in := pcmBytes(100, 200, 300)
		if out := audio.ResampleMono16(in, 16000, 16000); len(out) != len(in) {
			t.Fatalf("len = %d, want %d", len(out), len(in))
		}
	})

	t.Run("upsample 3x", func(t *testing.T) {
		got := pcmSamples(audio.ResampleMono16(pcmBytes(1000, 2000), 16000, 48000))
		if len(got) != 6 {
			t.Fatalf("len = %d samples, want 6", len(got))
		}
		if got[0] != 1000 {
			t.Errorf("first sample = %d, want 1000", got[0])
		}
		if last := got[5]; last < 1800 || last > 2200 {
			t.Errorf("last sample = %d, want near 2000", last)
		}
	})

	t.Run("downsample 3x", func(t *testing.T) {
		got := pcmSamples(audio.ResampleMono16(pcmBytes(100, 200, 300, 400, 500, 600), 48000, 16000))
		if len(got) != 2 {
			t.Fatalf("len = %d samples, want 2", len(got))
		}
	})

	t.Run("nonsense rates unchanged", func(t *testing.T) {
		in := pcmBytes(100, 200)
		for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 48000}} {
			if out := audio.ResampleMono16(in, rates[0], rates[1]); len(out) != len(in) {
				t.Errorf("rates %v: len = %d, want %d", rates, len(out), len(in))
			}
		}
	})
}

func TestResampleStereo16(t *testing.T) {
	t.Parallel()

	got := pcmSamples(audio.ResampleStereo16(pcmBytes(100, 200, 300, 400), 16000, 48000))
	if len(got) != 12 {
		t.Fatalf("len = %d samples, want 12 (6 stereo frames)", len(got))
	}

	in := pcmBytes(100, 200, 300, 400)
	if out := audio.ResampleStereo16(in, 0, 48000); len(out) != len(in) {
		t.Errorf("zero srcRate: len = %d, want %d", len(out), len(in))
	}
	if out := audio.ResampleStereo16(in, 48000, 0); len(out) != len(in) {
		t.Errorf("zero dstRate: len = %d, want %d", len(out), len(in))
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()
	target := audio.Format{SampleRate: 16000, Channels: 1}

	t.Run("matching format passes through", func(t *testing.T) {
		conv := audio.FormatConverter{Target: target}
		frame := audio.Frame{Data: pcmBytes(100, 200), SampleRate: 16000, Channels: 1}
		result := conv.Convert(frame)
		if &result.Data[0] != &frame.Data[0] {
			t.Error("matching format should return the same backing slice")
		}
	})

	t.Run("stereo downmix keeps seq", func(t *testing.T) {
		conv := audio.FormatConverter{Target: target}
		result := conv.Convert(audio.Frame{
			Seq:        7,
			Data:       pcmBytes(100, 200, 300, 400),
			SampleRate: 16000,
			Channels:   2,
		})
		assertSamples(t, result.Data, 150, 350)
		if result.SampleRate != 16000 || result.Channels != 1 {
			t.Errorf("format = %dHz %dch, want 16000Hz 1ch", result.SampleRate, result.Channels)
		}
		if result.Seq != 7 {
			t.Errorf("Seq = %d, want 7", result.Seq)
		}
	})

	t.Run("mono upmix", func(t *testing.T) {
		conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 2}}
		result := conv.Convert(audio.Frame{
			Data:       pcmBytes(500, 600),
			SampleRate: 16000,
			Channels:   1,
		})
		assertSamples(t, result.Data, 500, 500, 600, 600)
		if result.Channels != 2 {
			t.Errorf("Channels = %d, want 2", result.Channels)
		}
	})

	t.Run("device rate and channels both converted", func(t *testing.T) {
		conv := audio.FormatConverter{Target: target}
		result := conv.Convert(audio.Frame{
			Data:       pcmBytes(1000, 1000, 2000, 2000, 3000, 3000),
			SampleRate: 44100,
			Channels:   2,
		})
		if result.SampleRate != 16000 || result.Channels != 1 {
			t.Fatalf("format = %dHz %dch, want 16000Hz 1ch", result.SampleRate, result.Channels)
		}
		if len(result.Data) == 0 {
			t.Error("converted frame has no data")
		}
	})

	t.Run("misaligned bytes emptied", func(t *testing.T) {
		conv := audio.FormatConverter{Target: target}
		result := conv.Convert(audio.Frame{
			Data:       []byte{1, 2, 3},
			SampleRate: 44100,
			Channels:   1,
		})
		if len(result.Data) != 0 {
			t.Fatalf("len(Data) = %d, want 0", len(result.Data))
		}
		if result.SampleRate != 16000 || result.Channels != 1 {
			t.Errorf("dropped frame format = %dHz %dch, want target format", result.SampleRate, result.Channels)
		}
	})

	t.Run("misaligned bytes caught on matching format too", func(t *testing.T) {
		conv := audio.FormatConverter{Target: target}
		result := conv.Convert(audio.Frame{
			Data:       []byte{1, 2, 3},
			SampleRate: 16000,
			Channels:   1,
		})
		if len(result.Data) != 0 {
			t.Fatalf("len(Data) = %d, want 0", len(result.Data))
		}
	})
}

func TestConvertStream(t *testing.T) {
	t.Parallel()
	in := make(chan audio.Frame, 3)
	out := audio.ConvertStream(in, audio.Format{SampleRate: 16000, Channels: 1})

	in <- audio.Frame{Seq: 1, Data: pcmBytes(100, 200, 300, 400), SampleRate: 16000, Channels: 2}
	in <- audio.Frame{Seq: 2, Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1}
	in <- audio.Frame{Seq: 3, Data: pcmBytes(500, 600), SampleRate: 16000, Channels: 1}
	close(in)

	var results []audio.Frame
	for frame := range out {
		results = append(results, frame)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (misaligned frame dropped)", len(results))
	}
	if results[0].Seq != 1 || results[1].Seq != 3 {
		t.Fatalf("seqs = %d,%d, want 1,3", results[0].Seq, results[1].Seq)
	}
	assertSamples(t, results[0].Data, 150, 350)
	assertSamples(t, results[1].Data, 500, 600)
}
