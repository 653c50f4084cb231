// Package energy implements a vad.Engine on short-term signal energy.
//
// Each session tracks an adaptive noise floor (an exponential moving average
// of RMS over frames it considers silent) and classifies a frame as speech
// when its RMS rises a configurable factor above that floor. A hangover
// counter keeps short intra-word pauses from splitting a speech run.
//
// The detector needs no model files and adds no latency, which makes it the
// default backend and the fallback when a model-based engine is unavailable.
// It is less robust than a trained model in noisy rooms; tune SpeechThreshold
// upward there.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/vad"
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("energy vad: session closed")

const (
	// defaultHangover is how many consecutive sub-threshold frames end a
	// speech run. Roughly 100–160ms at common frame sizes.
	defaultHangover = 5

	// defaultFloorAlpha is the EMA weight of the newest silent frame when
	// updating the noise floor.
	defaultFloorAlpha = 0.05

	// defaultFloorRatio scales the noise floor into the RMS level that maps
	// to probability 0.5.
	defaultFloorRatio = 3.0

	// minFloor keeps the floor from collapsing to zero on digital silence,
	// which would turn any nonzero sample into "speech".
	minFloor = 60.0

	// calibrationFrames is how many initial frames seed the noise floor
	// before speech detection activates.
	calibrationFrames = 10
)

// Engine creates energy-based VAD sessions. The zero value is ready to use
// with the package defaults; set fields to tune all sessions it creates.
type Engine struct {
	// Hangover overrides defaultHangover when > 0.
	Hangover int

	// FloorAlpha overrides defaultFloorAlpha when > 0.
	FloorAlpha float64

	// FloorRatio overrides defaultFloorRatio when > 0.
	FloorRatio float64
}

var _ vad.Engine = (*Engine)(nil)

// New returns an Engine with the package defaults.
func New() *Engine {
	return &Engine{}
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy vad: invalid frame size %dms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %f out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy vad: silence threshold %f out of range [0,%f]",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	s := &session{
		cfg:        cfg,
		hangover:   e.Hangover,
		floorAlpha: e.FloorAlpha,
		floorRatio: e.FloorRatio,
	}
	if s.hangover <= 0 {
		s.hangover = defaultHangover
	}
	if s.floorAlpha <= 0 {
		s.floorAlpha = defaultFloorAlpha
	}
	if s.floorRatio <= 0 {
		s.floorRatio = defaultFloorRatio
	}
	s.Reset()
	return s, nil
}

type session struct {
	cfg        vad.Config
	hangover   int
	floorAlpha float64
	floorRatio float64

	mu         sync.Mutex
	closed     bool
	floor      float64
	seen       int
	speaking   bool
	silentRun  int
}

var _ vad.Session = (*session)(nil)

// ProcessFrame implements vad.Session. Frame length is not required to
// match FrameSizeMs exactly — RMS is length-independent — but empty or
// odd-length PCM is rejected.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, ErrSessionClosed
	}
	if len(frame) < 2 || len(frame)%2 != 0 {
		return vad.Event{}, fmt.Errorf("energy vad: invalid frame length %d", len(frame))
	}

	rms := audio.RMS(frame)

	// Seed the floor before detecting anything.
	if s.seen < calibrationFrames {
		s.seen++
		s.absorb(rms)
		return vad.Event{Type: vad.Silence, Probability: 0}, nil
	}

	p := s.probability(rms)
	ev := vad.Event{Probability: p}

	switch {
	case !s.speaking && p >= s.cfg.SpeechThreshold:
		s.speaking = true
		s.silentRun = 0
		ev.Type = vad.SpeechStart

	case s.speaking && p >= s.cfg.SilenceThreshold:
		s.silentRun = 0
		ev.Type = vad.SpeechContinue

	case s.speaking:
		s.silentRun++
		if s.silentRun >= s.hangover {
			s.speaking = false
			s.silentRun = 0
			ev.Type = vad.SpeechEnd
		} else {
			ev.Type = vad.SpeechContinue
		}

	default:
		s.absorb(rms)
		ev.Type = vad.Silence
	}

	return ev, nil
}

// probability maps RMS onto [0,1) with 0.5 at floorRatio times the noise
// floor, so the default thresholds line up with "clearly above the room".
func (s *session) probability(rms float64) float64 {
	ref := s.floor * s.floorRatio
	if ref < minFloor {
		ref = minFloor
	}
	p := rms / (2 * ref)
	if p > 1 {
		p = 1
	}
	return p
}

// absorb folds a silent frame's RMS into the noise floor.
func (s *session) absorb(rms float64) {
	s.floor = (1-s.floorAlpha)*s.floor + s.floorAlpha*rms
	if s.floor < minFloor {
		s.floor = minFloor
	}
}

// Reset implements vad.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = minFloor
	s.seen = 0
	s.speaking = false
	s.silentRun = 0
}

// Close implements vad.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
