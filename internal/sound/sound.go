// Package sound plays short audible cues for capture transitions: a
// rising tone when a session starts listening, a falling tone when it
// finalizes, and a low tone on cancel. Cues are synthesized sine sweeps —
// no audio assets — played through a PortAudio output stream.
//
// The player is a notification subscriber like any other; playback
// failures are logged and never disturb the pipeline.
package sound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lodrian/ascolta/internal/capture"
)

const (
	cueSampleRate = 44100

	// envelopeRamp is the attack/release length that keeps the tone edges
	// click-free.
	envelopeRamp = 5 * time.Millisecond

	playbackChunk = 1024

	defaultVolume = 0.3
)

type cue int

const (
	cueStart cue = iota
	cueFinalize
	cueCancel
)

// Subscriber hands out notification streams. *capture.Controller
// satisfies it.
type Subscriber interface {
	Subscribe(buffer int) (<-chan capture.Notification, func())
}

var _ Subscriber = (*capture.Controller)(nil)

// Config wires a Player.
type Config struct {
	// Enabled turns cue playback on.
	Enabled bool

	// OutputDeviceID selects the playback device. Nil uses the default
	// output device.
	OutputDeviceID *int

	// Volume scales the cues, 0..1. Defaults to 0.3.
	Volume float64
}

// writer plays one mono PCM buffer to completion.
type writer interface {
	play(samples []int16, sampleRate int) error
}

// Player turns capture notifications into audible cues.
type Player struct {
	enabled bool
	out     writer
	cues    map[cue][]int16

	warnedErr bool
}

// New builds a Player with the cue buffers pre-synthesized at the
// configured volume.
func New(cfg Config) *Player {
	volume := cfg.Volume
	if volume <= 0 {
		volume = defaultVolume
	}
	if volume > 1 {
		volume = 1
	}
	return &Player{
		enabled: cfg.Enabled,
		out:     &portaudioWriter{deviceID: cfg.OutputDeviceID},
		cues: map[cue][]int16{
			cueStart:    synthesize(440, 660, 120*time.Millisecond, cueSampleRate, volume),
			cueFinalize: synthesize(660, 440, 120*time.Millisecond, cueSampleRate, volume),
			cueCancel:   synthesize(220, 220, 150*time.Millisecond, cueSampleRate, volume),
		},
	}
}

// Run consumes notifications and plays the matching cues until ctx is
// done or the subscription closes. Returns nil immediately when disabled.
func (p *Player) Run(ctx context.Context, sub Subscriber) error {
	if !p.enabled {
		return nil
	}
	notifs, cancel := sub.Subscribe(8)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifs:
			if !ok {
				return nil
			}
			c, ok := cueFor(n)
			if !ok {
				continue
			}
			if err := p.out.play(p.cues[c], cueSampleRate); err != nil {
				// first failure warns, the rest stay quiet
				if p.warnedErr {
					slog.Debug("cue playback failed", "error", err)
				} else {
					p.warnedErr = true
					slog.Warn("cue playback failed", "error", err)
				}
			}
		}
	}
}

// cueFor maps a notification to its cue, if any.
func cueFor(n capture.Notification) (cue, bool) {
	if n.Type != capture.NotifyStateChanged {
		return 0, false
	}
	switch {
	case n.State == "listening":
		return cueStart, true
	case n.State == "finalizing":
		return cueFinalize, true
	case n.State == "idle" && n.Reason == "canceled":
		return cueCancel, true
	}
	return 0, false
}

// synthesize renders a linear sine sweep from one frequency to another
// with a short attack/release envelope.
func synthesize(from, to float64, d time.Duration, rate int, volume float64) []int16 {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	ramp := int(int64(rate) * int64(envelopeRamp) / int64(time.Second))
	samples := make([]int16, n)

	var phase float64
	for i := range samples {
		t := float64(i) / float64(n)
		freq := from + (to-from)*t
		phase += 2 * math.Pi * freq / float64(rate)

		env := 1.0
		if i < ramp {
			env = float64(i) / float64(ramp)
		} else if left := n - 1 - i; left < ramp {
			env = float64(left) / float64(ramp)
		}
		samples[i] = int16(volume * env * math.Sin(phase) * math.MaxInt16)
	}
	return samples
}

// portaudioWriter plays through PortAudio, claiming the output device only
// for the duration of one cue.
type portaudioWriter struct {
	deviceID *int
}

func (w *portaudioWriter) play(samples []int16, sampleRate int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("sound: initialize: %w", err)
	}
	defer portaudio.Terminate()

	dev, err := w.outputDevice()
	if err != nil {
		return err
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = playbackChunk

	buf := make([]int16, playbackChunk)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("sound: open %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("sound: start %q: %w", dev.Name, err)
	}

	for off := 0; off < len(samples); off += len(buf) {
		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Stop()
			stream.Close()
			return fmt.Errorf("sound: write: %w", err)
		}
	}
	return errors.Join(stream.Stop(), stream.Close())
}

func (w *portaudioWriter) outputDevice() (*portaudio.DeviceInfo, error) {
	if w.deviceID == nil {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("sound: default output device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("sound: list devices: %w", err)
	}
	id := *w.deviceID
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("sound: output device index %d out of range (have %d devices)", id, len(devices))
	}
	if devices[id].MaxOutputChannels < 1 {
		return nil, fmt.Errorf("sound: device %q has no output channels", devices[id].Name)
	}
	return devices[id], nil
}
