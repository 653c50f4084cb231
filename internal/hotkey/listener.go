// Package hotkey turns a process-wide key combination into capture intents.
//
// The [Listener] registers a global shortcut through golang.design/x/hotkey
// and translates its keydown/keyup events according to the configured mode:
// toggle emits one Toggle intent per press, hold-to-talk emits Start on
// press and Stop on release. Consecutive intents of the same kind inside the
// debounce window are dropped, which swallows OS key auto-repeat; the window
// slides with every suppressed event, so a held key emits exactly once.
//
// Registration can fail — another process may own the combination, or the
// platform may refuse global hooks. Callers treat that as a degraded mode:
// the rest of the pipeline keeps running on wake-word and HTTP triggers.
package hotkey

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	xhotkey "golang.design/x/hotkey"

	"github.com/lodrian/ascolta/internal/config"
)

// IntentKind enumerates the capture commands a key gesture can produce.
type IntentKind int

const (
	// IntentToggle flips between capturing and not capturing.
	IntentToggle IntentKind = iota

	// IntentStart begins a capture session.
	IntentStart

	// IntentStop finalizes the running capture session.
	IntentStop
)

// String returns the lowercase name of the intent kind.
func (k IntentKind) String() string {
	switch k {
	case IntentToggle:
		return "toggle"
	case IntentStart:
		return "start"
	case IntentStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Intent is one debounced gesture from the global hotkey.
type Intent struct {
	Kind IntentKind
	At   time.Time
}

// Backend is the OS registration surface behind a [Listener]. The production
// implementation is [xhotkey.Hotkey]; tests substitute fake channels.
type Backend interface {
	Register() error
	Unregister() error
	Keydown() <-chan xhotkey.Event
	Keyup() <-chan xhotkey.Event
}

var _ Backend = (*xhotkey.Hotkey)(nil)

// Option is a functional option for configuring a [Listener].
type Option func(*Listener)

// WithBackend replaces the OS hotkey with a custom [Backend].
func WithBackend(b Backend) Option {
	return func(l *Listener) {
		l.backend = b
	}
}

// WithClock replaces the debounce clock. Tests use it to make suppression
// windows deterministic.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		l.now = now
	}
}

// Listener owns a registered global hotkey and emits [Intent] values on its
// Intents channel. Start and Stop are called by the owning goroutine; the
// Intents channel may be consumed from anywhere.
type Listener struct {
	binding  Binding
	mode     config.HotkeyMode
	debounce time.Duration
	backend  Backend
	now      func() time.Time

	intents chan Intent
	done    chan struct{}

	registered bool
	stopOnce   sync.Once

	// Debounce state, touched only by the event loop goroutine.
	hasLast  bool
	lastKind IntentKind
	lastAt   time.Time
}

// New parses the configured binding and prepares a Listener. The hotkey is
// not registered with the OS until [Listener.Start].
func New(cfg config.HotkeyConfig, opts ...Option) (*Listener, error) {
	binding, err := ParseBinding(cfg.Binding)
	if err != nil {
		return nil, err
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("hotkey: invalid mode %q", cfg.Mode)
	}

	l := &Listener{
		binding:  binding,
		mode:     cfg.Mode,
		debounce: cfg.Debounce(),
		now:      time.Now,
		intents:  make(chan Intent, 16),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if l.backend == nil {
		l.backend = xhotkey.New(binding.modifiers(), binding.key)
	}
	return l, nil
}

// Start registers the combination with the OS and begins translating key
// events. On error nothing is registered and no intents will ever arrive.
func (l *Listener) Start() error {
	if err := l.backend.Register(); err != nil {
		return fmt.Errorf("hotkey: register %s: %w", l.binding, err)
	}
	l.registered = true
	slog.Info("hotkey registered", "binding", l.binding.String(), "mode", string(l.mode))
	go l.loop()
	return nil
}

// Intents returns the stream of debounced intents. The channel is closed
// after Stop once the listener was started.
func (l *Listener) Intents() <-chan Intent {
	return l.intents
}

// Stop unregisters the hotkey and ends the event loop. Safe to call more
// than once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.registered {
			if err := l.backend.Unregister(); err != nil {
				slog.Warn("hotkey unregister failed", "binding", l.binding.String(), "error", err)
			}
		}
	})
}

func (l *Listener) loop() {
	defer close(l.intents)
	for {
		select {
		case <-l.done:
			return
		case _, ok := <-l.backend.Keydown():
			if !ok {
				return
			}
			if l.mode == config.HotkeyHoldToTalk {
				l.emit(IntentStart)
			} else {
				l.emit(IntentToggle)
			}
		case _, ok := <-l.backend.Keyup():
			if !ok {
				return
			}
			if l.mode == config.HotkeyHoldToTalk {
				l.emit(IntentStop)
			}
		}
	}
}

// emit applies debouncing and delivers the intent without ever blocking the
// key event loop.
func (l *Listener) emit(kind IntentKind) {
	now := l.now()
	suppressed := l.hasLast && l.lastKind == kind && l.debounce > 0 && now.Sub(l.lastAt) < l.debounce
	l.hasLast = true
	l.lastKind = kind
	l.lastAt = now
	if suppressed {
		slog.Debug("hotkey repeat suppressed", "kind", kind.String())
		return
	}

	select {
	case l.intents <- Intent{Kind: kind, At: now}:
	default:
		slog.Warn("hotkey intent dropped, consumer not keeping up", "kind", kind.String())
	}
}
