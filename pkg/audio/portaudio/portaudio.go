// Package portaudio implements the capture [audio.Source] on top of the
// PortAudio blocking-read API.
//
// The source opens one exclusive input stream and pumps fixed-size frames on
// a dedicated goroutine. When the configured sample rate is not supported by
// the device, the stream is opened at the device's native rate and each frame
// is converted to the pipeline format before delivery, so consumers always
// see the configured format.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lodrian/ascolta/pkg/audio"
)

// UseDefaultDevice selects the system default input device.
const UseDefaultDevice = -1

// Config controls how the capture stream is opened.
type Config struct {
	// DeviceID is the PortAudio device index, or [UseDefaultDevice].
	DeviceID int

	// SampleRate is the pipeline sample rate in Hz (e.g., 16000).
	SampleRate int

	// FrameDuration is the duration of each delivered frame (e.g., 20ms).
	FrameDuration time.Duration

	// Buffer is the frames channel capacity. Defaults to 64 frames.
	Buffer int
}

// Source is a PortAudio-backed [audio.Source].
type Source struct {
	stream *portaudio.Stream
	buf    []int16
	conv   *audio.FormatConverter // nil when the device runs at the pipeline rate
	period time.Duration
	rate   int

	frames  chan audio.Frame
	closing chan struct{}
	done    chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error

	warnOverflow sync.Once
}

// Open claims the configured device and starts capturing. Any failure here
// is a fatal *[audio.DeviceError]; the pipeline cannot start without audio.
func Open(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameDuration <= 0 {
		return nil, fmt.Errorf("invalid capture config: rate=%d frame=%v", cfg.SampleRate, cfg.FrameDuration)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Device: "portaudio", Err: err}
	}

	dev, err := lookupDevice(cfg.DeviceID)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &Source{
		period:  cfg.FrameDuration,
		rate:    cfg.SampleRate,
		frames:  make(chan audio.Frame, cfg.Buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	samples := int(int64(cfg.SampleRate) * int64(cfg.FrameDuration) / int64(time.Second))
	if err := s.openStream(dev, cfg.SampleRate, samples); err != nil {
		// Retry at the device's native rate and convert per frame.
		native := int(dev.DefaultSampleRate)
		if native <= 0 || native == cfg.SampleRate {
			portaudio.Terminate()
			return nil, &audio.DeviceError{Device: dev.Name, Err: err}
		}
		slog.Warn("capture device rejected pipeline sample rate, converting from native rate",
			"device", dev.Name,
			"pipeline_rate", cfg.SampleRate,
			"native_rate", native,
		)
		nativeSamples := int(int64(native) * int64(cfg.FrameDuration) / int64(time.Second))
		if err := s.openStream(dev, native, nativeSamples); err != nil {
			portaudio.Terminate()
			return nil, &audio.DeviceError{Device: dev.Name, Err: err}
		}
		s.rate = native
		s.conv = &audio.FormatConverter{
			Target: audio.Format{SampleRate: cfg.SampleRate, Channels: 1},
		}
	}

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return nil, &audio.DeviceError{Device: dev.Name, Err: err}
	}

	go s.run()
	return s, nil
}

func (s *Source) openStream(dev *portaudio.DeviceInfo, rate, samples int) error {
	p := portaudio.HighLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = samples

	s.buf = make([]int16, samples)
	stream, err := portaudio.OpenStream(p, s.buf)
	if err != nil {
		return err
	}
	s.stream = stream
	return nil
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Err implements [audio.Source].
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Source]. Aborts any in-flight read, releases the
// stream, and waits for the pump goroutine to exit.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.stream.Abort() // unblocks a pending Read
		<-s.done
		s.closeErr = errors.Join(s.stream.Close(), portaudio.Terminate())
	})
	return s.closeErr
}

// run pumps the blocking-read loop. Each successful read becomes one frame;
// sequence numbers advance only for delivered frames, so the channel stays
// gap-free even when the device itself overflows.
func (s *Source) run() {
	defer close(s.done)
	defer close(s.frames)

	var seq uint64
	for {
		select {
		case <-s.closing:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// The read still filled the buffer; audio before it was lost
				// inside the device ring. Keep the frame and keep going.
				s.warnOverflow.Do(func() {
					slog.Warn("capture stream overflowed, device audio lost", "seq", seq)
				})
			} else {
				select {
				case <-s.closing:
					// Abort from Close surfaces as a read error; not a device loss.
					return
				default:
				}
				s.setErr(fmt.Errorf("%w: %v", audio.ErrDeviceLost, err))
				return
			}
		}

		frame := audio.Frame{
			Seq:        seq,
			Data:       audio.Int16ToBytes(s.buf),
			SampleRate: s.rate,
			Channels:   1,
			Timestamp:  time.Duration(seq) * s.period,
		}
		if s.conv != nil {
			frame = s.conv.Convert(frame)
		}

		select {
		case s.frames <- frame:
			seq++
		case <-s.closing:
			return
		}
	}
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func lookupDevice(id int) (*portaudio.DeviceInfo, error) {
	if id == UseDefaultDevice {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, &audio.DeviceError{Device: "default", Err: err}
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &audio.DeviceError{Device: fmt.Sprintf("#%d", id), Err: err}
	}
	if id < 0 || id >= len(devices) {
		return nil, &audio.DeviceError{
			Device: fmt.Sprintf("#%d", id),
			Err:    fmt.Errorf("device index out of range (have %d devices)", len(devices)),
		}
	}
	dev := devices[id]
	if dev.MaxInputChannels < 1 {
		return nil, &audio.DeviceError{
			Device: dev.Name,
			Err:    errors.New("device has no input channels"),
		}
	}
	return dev, nil
}

// Devices enumerates the capture-capable devices on the host. Devices without
// input channels (playback-only) are filtered out.
func Devices() ([]audio.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Device: "portaudio", Err: err}
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, &audio.DeviceError{Device: "portaudio", Err: err}
	}
	def, _ := portaudio.DefaultInputDevice()

	out := make([]audio.Device, 0, len(infos))
	for i, d := range infos {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, audio.Device{
			ID:                i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: int(d.DefaultSampleRate),
			Default:           d == def,
		})
	}
	return out, nil
}
