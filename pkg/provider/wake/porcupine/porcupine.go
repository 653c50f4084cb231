// Package porcupine implements wake.Engine on top of the Picovoice Porcupine
// keyword-spotting engine.
//
// Porcupine processes fixed 512-sample frames at 16kHz. Sessions re-buffer
// whatever frame sizes the pipeline delivers into that native framing, so the
// rest of the system never deals with it. Keyword models are .ppn files; a
// non-English language additionally needs the matching .pv model file.
//
// Porcupine reports hits as a keyword index with no score, so Detection
// confidence carries the configured sensitivity for the matched phrase.
package porcupine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/lodrian/ascolta/pkg/provider/wake"
)

// ErrSessionClosed is returned by Feed after Close.
var ErrSessionClosed = errors.New("porcupine: session closed")

// Engine creates Porcupine-backed wake-word sessions.
type Engine struct {
	// AccessKey is the Picovoice console access key. Required.
	AccessKey string

	// KeywordPaths are the .ppn keyword models to spot, one per phrase.
	// At least one is required.
	KeywordPaths []string

	// ModelPath is the language model (.pv). Empty selects the engine's
	// built-in English model.
	ModelPath string
}

var _ wake.Engine = (*Engine)(nil)

// New returns an Engine for the given credentials and keyword models.
func New(accessKey string, keywordPaths []string, modelPath string) *Engine {
	return &Engine{
		AccessKey:    accessKey,
		KeywordPaths: keywordPaths,
		ModelPath:    modelPath,
	}
}

// NewSession implements wake.Engine. It loads the keyword models into a
// dedicated Porcupine instance, so sessions are independent.
func (e *Engine) NewSession(cfg wake.Config) (wake.Session, error) {
	if e.AccessKey == "" {
		return nil, errors.New("porcupine: access key is required")
	}
	if len(e.KeywordPaths) == 0 {
		return nil, errors.New("porcupine: at least one keyword model is required")
	}
	if cfg.SampleRate != pv.SampleRate {
		return nil, fmt.Errorf("porcupine: requires %dHz audio, pipeline is %dHz",
			pv.SampleRate, cfg.SampleRate)
	}
	sensitivity := cfg.Sensitivity
	if sensitivity == 0 {
		sensitivity = 0.5
	}
	if sensitivity < 0 || sensitivity > 1 {
		return nil, fmt.Errorf("porcupine: sensitivity %f out of range [0,1]", sensitivity)
	}

	sensitivities := make([]float32, len(e.KeywordPaths))
	for i := range sensitivities {
		sensitivities[i] = sensitivity
	}

	p := pv.Porcupine{
		AccessKey:     e.AccessKey,
		KeywordPaths:  e.KeywordPaths,
		ModelPath:     e.ModelPath,
		Sensitivities: sensitivities,
	}
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("porcupine init: %w", err)
	}

	return &session{
		p:           p,
		phrases:     phraseIDs(e.KeywordPaths),
		sensitivity: sensitivity,
		frameLen:    pv.FrameLength,
	}, nil
}

type session struct {
	mu          sync.Mutex
	p           pv.Porcupine
	phrases     []string
	sensitivity float32
	frameLen    int
	buf         []int16
	closed      bool
}

var _ wake.Session = (*session)(nil)

// Feed implements wake.Session. All complete native frames in the
// buffer are processed even after a hit, so the model state keeps advancing;
// the first hit in the batch is the one reported.
func (s *session) Feed(samples []int16) (wake.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wake.Detection{}, ErrSessionClosed
	}

	s.buf = append(s.buf, samples...)

	var det wake.Detection
	off := 0
	for len(s.buf)-off >= s.frameLen {
		idx, err := s.p.Process(s.buf[off : off+s.frameLen])
		off += s.frameLen
		if err != nil {
			s.compact(off)
			return det, fmt.Errorf("porcupine process: %w", err)
		}
		if idx >= 0 && !det.Hit {
			det = wake.Detection{
				Hit:        true,
				PhraseID:   s.phrases[idx],
				Confidence: float64(s.sensitivity),
			}
		}
	}
	s.compact(off)
	return det, nil
}

// compact drops the first off consumed samples from the buffer.
func (s *session) compact(off int) {
	if off == 0 {
		return
	}
	n := copy(s.buf, s.buf[off:])
	s.buf = s.buf[:n]
}

// Reset implements wake.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.buf[:0]
}

// Close implements wake.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.p.Delete()
}

// phraseIDs derives stable phrase identifiers from keyword model paths:
// "models/hey_ascolta_linux.ppn" becomes "hey_ascolta_linux".
func phraseIDs(paths []string) []string {
	ids := make([]string, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		ids[i] = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return ids
}
