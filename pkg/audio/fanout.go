package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Fanout splits one source stream into a lossless primary output and any
// number of lossy taps.
//
// The primary output is for the consumer that owns session buffering: sends
// block, so every frame that enters the fanout reaches it in order. Taps are
// for advisory consumers (VAD, wake-word) that tolerate missing frames: when
// a tap's buffer is full the frame is dropped for that tap only and counted.
//
// Register all taps before calling [Fanout.Run]. All outputs are closed when
// the input channel closes.
type Fanout struct {
	in      <-chan Frame
	primary chan Frame
	taps    []*tap
}

type tap struct {
	name      string
	ch        chan Frame
	dropped   atomic.Uint64
	warnedLag sync.Once
}

// NewFanout wraps in. primaryBuffer sizes the primary output channel; a few
// frames of slack absorbs consumer jitter without reordering.
func NewFanout(in <-chan Frame, primaryBuffer int) *Fanout {
	if primaryBuffer < 0 {
		primaryBuffer = 0
	}
	return &Fanout{
		in:      in,
		primary: make(chan Frame, primaryBuffer),
	}
}

// Primary returns the lossless output. The same channel is returned on
// every call.
func (f *Fanout) Primary() <-chan Frame {
	return f.primary
}

// Tap registers a lossy output named for diagnostics. Must be called before
// [Fanout.Run].
func (f *Fanout) Tap(name string, buffer int) <-chan Frame {
	if buffer < 1 {
		buffer = 1
	}
	t := &tap{name: name, ch: make(chan Frame, buffer)}
	f.taps = append(f.taps, t)
	return t.ch
}

// Run distributes frames until the input channel closes, then closes all
// outputs. It blocks; call it on its own goroutine.
func (f *Fanout) Run() {
	for frame := range f.in {
		f.primary <- frame
		for _, t := range f.taps {
			select {
			case t.ch <- frame:
			default:
				t.dropped.Add(1)
				t.warnedLag.Do(func() {
					slog.Warn("audio fanout: tap lagging, dropping frames",
						"tap", t.name,
						"seq", frame.Seq,
					)
				})
			}
		}
	}
	close(f.primary)
	for _, t := range f.taps {
		close(t.ch)
	}
}

// Dropped returns the per-tap count of frames dropped so far.
func (f *Fanout) Dropped() map[string]uint64 {
	out := make(map[string]uint64, len(f.taps))
	for _, t := range f.taps {
		out[t.name] = t.dropped.Load()
	}
	return out
}
