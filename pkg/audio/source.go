// Package audio defines the frame model and capture-source contract for the
// ascolta pipeline.
//
// The central abstraction is [Source] — an exclusive handle on an input
// device that delivers a gap-free stream of [Frame] values until closed or
// until the device disappears. Device-specific adapters (e.g., audio/portaudio)
// implement it; audio/mock provides a scripted implementation for tests.
//
// The package also carries the PCM plumbing shared across the pipeline:
// format conversion, WAV encoding for transcription providers, and the
// [Fanout] that splits one source stream into per-consumer taps.
//
// This package lives under pkg/ because external code (alternative capture
// backends) is expected to implement [Source].
package audio

import (
	"errors"
	"fmt"
)

// ErrDeviceLost indicates that the capture device disappeared mid-stream
// (unplugged, claimed by another process, backend reset). The source stops
// delivering frames after surfacing it; already-delivered frames remain
// valid. Recovering requires opening a new [Source].
var ErrDeviceLost = errors.New("capture device lost")

// DeviceError reports a failure to open or configure a capture device.
// Opening is the only moment the pipeline treats a device failure as fatal;
// once a stream is live, failures surface as [ErrDeviceLost] instead.
type DeviceError struct {
	// Device names the device that failed, as the backend reports it.
	Device string

	// Err is the underlying backend error.
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %q: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Device describes an input device available for capture.
// The control surface exposes this list so callers can pick a device ID
// for the pipeline configuration.
type Device struct {
	// ID is the backend-specific device index.
	ID int `json:"id"`

	// Name is the human-readable device name.
	Name string `json:"name"`

	// MaxInputChannels is the number of input channels the device supports.
	// Devices with zero input channels are not capture devices and are
	// filtered out of enumeration results.
	MaxInputChannels int `json:"max_input_channels"`

	// DefaultSampleRate is the device's preferred sample rate in Hz.
	DefaultSampleRate int `json:"default_sample_rate"`

	// Default reports whether this is the system default input device.
	Default bool `json:"default"`
}

// Source is an exclusive handle on an open capture device.
//
// A Source starts delivering frames as soon as it is opened and keeps the
// Frames channel gap-free: consecutive frames carry consecutive Seq values
// and strictly increasing timestamps. The channel closes when the source is
// closed or the device is lost; after it closes, [Source.Err] reports why.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Frames returns the stream of captured frames. The same channel is
	// returned on every call. It is closed exactly once, on [Source.Close]
	// or device loss.
	Frames() <-chan Frame

	// Err returns the terminal error after Frames closes: nil for a clean
	// Close, or an error wrapping [ErrDeviceLost] when the device vanished.
	// Before Frames closes it returns nil.
	Err() error

	// Close releases the device. It is safe to call more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}
