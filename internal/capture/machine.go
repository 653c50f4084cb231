package capture

import (
	"time"

	"github.com/lodrian/ascolta/internal/config"
)

// EffectKind discriminates the side effects a transition asks for.
type EffectKind int

const (
	// EffectStartSession: create a fresh session with Effect.Trigger.
	EffectStartSession EffectKind = iota

	// EffectUpgradeTrigger: rewrite the session trigger to manual.
	EffectUpgradeTrigger

	// EffectAppendFrame: append the event's frame to the session.
	EffectAppendFrame

	// EffectDispatch: snapshot the session and start the async flush.
	EffectDispatch

	// EffectDiscard: drop the session without dispatching.
	EffectDiscard

	// EffectAbortDispatches: cancel in-flight dispatches best-effort.
	EffectAbortDispatches
)

// String returns the snake_case effect name.
func (k EffectKind) String() string {
	switch k {
	case EffectStartSession:
		return "start_session"
	case EffectUpgradeTrigger:
		return "upgrade_trigger"
	case EffectAppendFrame:
		return "append_frame"
	case EffectDispatch:
		return "dispatch"
	case EffectDiscard:
		return "discard"
	case EffectAbortDispatches:
		return "abort_dispatches"
	default:
		return "unknown"
	}
}

// Effect is one side effect requested by a transition. Only the fields
// relevant to Kind are set.
type Effect struct {
	Kind EffectKind

	// Trigger is the trigger for EffectStartSession.
	Trigger Trigger

	// Reason is the finalize or discard reason for EffectDispatch and
	// EffectDiscard.
	Reason FinalizeReason

	// Epoch identifies the machine session for EffectDispatch, so a late
	// flush result cannot be mistaken for a newer session's.
	Epoch uint64
}

// Params fixes the machine's timing policy. All timing is derived from
// event payloads and frame counts; the machine never reads a clock.
type Params struct {
	// FrameDuration is the nominal length of one frame.
	FrameDuration time.Duration

	// SilenceTimeout finalizes a session after this much trailing silence.
	SilenceTimeout time.Duration

	// GraceWindow is how much audio is still appended after the finalize
	// decision, to catch the tail of an utterance.
	GraceWindow time.Duration

	// MaxSession caps the captured audio per session. Zero disables.
	MaxSession time.Duration

	// NoSpeechTimeout discards a wake session that never heard speech.
	// Zero disables.
	NoSpeechTimeout time.Duration

	// AutoSend lets manual sessions finalize on silence.
	AutoSend bool

	// HotkeyMode decides whether a Start during Listening finalizes.
	HotkeyMode config.HotkeyMode
}

// Machine is the capture state machine: Apply maps one event to the side
// effects it demands. It performs no IO and reads no clock, so any event
// sequence replays deterministically. It is not safe for concurrent use;
// the controller goroutine is its only caller.
type Machine struct {
	params Params
	state  State

	graceFrames    int
	maxFrames      int
	noSpeechFrames int

	// per-session bookkeeping, cleared by reset
	trigger             Trigger
	epoch               uint64
	framesInSession     int
	labeledInSession    int
	firstSeq            uint64
	haveFirstSeq        bool
	sawSpeech           bool
	finalizeReason      FinalizeReason
	framesSinceFinalize int
	flushStarted        bool

	// responseActive survives session boundaries: it tracks the chat
	// backend, not the session.
	responseActive bool
}

// NewMachine builds a machine in StateIdle.
func NewMachine(p Params) *Machine {
	m := &Machine{params: p}
	if p.FrameDuration > 0 {
		if p.GraceWindow > 0 {
			m.graceFrames = int(p.GraceWindow / p.FrameDuration)
		}
		if p.MaxSession > 0 {
			m.maxFrames = ceilFrames(p.MaxSession, p.FrameDuration)
		}
		if p.NoSpeechTimeout > 0 {
			m.noSpeechFrames = ceilFrames(p.NoSpeechTimeout, p.FrameDuration)
		}
	}
	return m
}

func ceilFrames(d, frame time.Duration) int {
	n := int(d / frame)
	if d%frame != 0 {
		n++
	}
	return n
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Trigger returns the active session's trigger. Meaningless in StateIdle.
func (m *Machine) Trigger() Trigger { return m.trigger }

// Epoch returns the active session's epoch. It increments on every
// session start and never repeats.
func (m *Machine) Epoch() uint64 { return m.epoch }

// ResponseActive reports whether the chat backend is streaming a response.
func (m *Machine) ResponseActive() bool { return m.responseActive }

// Apply advances the machine by one event and returns the effects the
// caller must carry out, in order.
func (m *Machine) Apply(ev Event) []Effect {
	switch ev.Kind {
	case EventFrame:
		return m.onFrame(ev)
	case EventLabel:
		return m.onLabel(ev)
	case EventWake:
		return m.onWake()
	case EventStart:
		return m.onManual(false)
	case EventToggle:
		return m.onManual(true)
	case EventStop:
		return m.onStop()
	case EventCancel:
		return m.onCancel()
	case EventFlushDone:
		return m.onFlushDone(ev.Epoch)
	case EventResponseStarted:
		return m.onResponseStarted()
	case EventResponseComplete:
		return m.onResponseComplete()
	case EventDeviceLost:
		return m.onDeviceLost()
	default:
		return nil
	}
}

func (m *Machine) onFrame(ev Event) []Effect {
	switch m.state {
	case StateListening:
		m.framesInSession++
		if !m.haveFirstSeq {
			m.firstSeq = ev.Frame.Seq
			m.haveFirstSeq = true
		}
		effects := []Effect{{Kind: EffectAppendFrame}}
		if m.maxFrames > 0 && m.framesInSession >= m.maxFrames {
			m.beginFinalize(ReasonMaxDuration)
		}
		return effects
	case StateFinalizing:
		if m.flushStarted {
			// the flush already snapshotted; this frame belongs to
			// no session
			return nil
		}
		m.framesSinceFinalize++
		if m.framesSinceFinalize <= m.graceFrames {
			return []Effect{{Kind: EffectAppendFrame}}
		}
		m.flushStarted = true
		return []Effect{{Kind: EffectDispatch, Reason: m.finalizeReason, Epoch: m.epoch}}
	default:
		return nil
	}
}

func (m *Machine) onLabel(ev Event) []Effect {
	if m.state != StateListening {
		return nil
	}
	if !m.haveFirstSeq || ev.Seq < m.firstSeq {
		// verdict for a frame captured before this session started
		return nil
	}
	m.labeledInSession++
	if ev.Label == LabelSpeech {
		m.sawSpeech = true
		return nil
	}
	if !m.sawSpeech {
		// Trailing-silence finalization needs speech first, otherwise a
		// false wake activation would ship ambient noise to the provider.
		if m.trigger == TriggerWakeWord && m.noSpeechFrames > 0 && m.labeledInSession >= m.noSpeechFrames {
			m.reset(StateIdle)
			return []Effect{{Kind: EffectDiscard, Reason: ReasonNoSpeech}}
		}
		return nil
	}
	if m.params.SilenceTimeout <= 0 {
		return nil
	}
	if time.Duration(ev.SilenceMs)*time.Millisecond < m.params.SilenceTimeout {
		return nil
	}
	if m.trigger == TriggerWakeWord || m.params.AutoSend {
		m.beginFinalize(ReasonSilence)
	}
	return nil
}

func (m *Machine) onWake() []Effect {
	switch m.state {
	case StateIdle:
		return []Effect{m.startSession(TriggerWakeWord)}
	case StateFinalizing:
		if m.responseActive {
			// likely the assistant hearing itself
			return nil
		}
		effects := m.dispatchIfPending()
		return append(effects, m.startSession(TriggerWakeWord))
	default:
		// Listening: already capturing. Suspended: discarded.
		return nil
	}
}

func (m *Machine) onManual(toggle bool) []Effect {
	switch m.state {
	case StateIdle:
		return []Effect{m.startSession(TriggerManual)}
	case StateListening:
		// A manual intent within one frame of the wake means the user
		// pressed as the phrase landed: same session, manual semantics.
		if m.trigger == TriggerWakeWord && m.framesInSession <= 1 {
			m.trigger = TriggerManual
			return []Effect{{Kind: EffectUpgradeTrigger}}
		}
		if toggle || m.params.HotkeyMode == config.HotkeyToggle {
			m.beginFinalize(ReasonStop)
		}
		return nil
	case StateFinalizing:
		effects := m.dispatchIfPending()
		return append(effects, m.startSession(TriggerManual))
	case StateSuspended:
		// an explicit user action always wins over suspension
		return []Effect{m.startSession(TriggerManual)}
	default:
		return nil
	}
}

func (m *Machine) onStop() []Effect {
	if m.state == StateListening {
		m.beginFinalize(ReasonStop)
	}
	return nil
}

func (m *Machine) onCancel() []Effect {
	switch m.state {
	case StateListening:
		m.reset(StateIdle)
		return []Effect{
			{Kind: EffectDiscard, Reason: ReasonCanceled},
			{Kind: EffectAbortDispatches},
		}
	case StateFinalizing:
		var effects []Effect
		if !m.flushStarted {
			effects = append(effects, Effect{Kind: EffectDiscard, Reason: ReasonCanceled})
		}
		m.reset(StateIdle)
		return append(effects, Effect{Kind: EffectAbortDispatches})
	case StateSuspended:
		m.responseActive = false
		m.reset(StateIdle)
		return []Effect{{Kind: EffectAbortDispatches}}
	default:
		// idle: nothing to discard, but stragglers still get aborted
		return []Effect{{Kind: EffectAbortDispatches}}
	}
}

func (m *Machine) onFlushDone(epoch uint64) []Effect {
	if m.state != StateFinalizing || !m.flushStarted || epoch != m.epoch {
		// a stale flush: its session was replaced or canceled
		return nil
	}
	if m.responseActive {
		m.reset(StateSuspended)
	} else {
		m.reset(StateIdle)
	}
	return nil
}

func (m *Machine) onResponseStarted() []Effect {
	m.responseActive = true
	if m.state == StateIdle {
		m.state = StateSuspended
	}
	return nil
}

func (m *Machine) onResponseComplete() []Effect {
	m.responseActive = false
	if m.state == StateSuspended {
		m.state = StateIdle
	}
	return nil
}

func (m *Machine) onDeviceLost() []Effect {
	switch m.state {
	case StateListening:
		if m.framesInSession == 0 {
			m.reset(StateIdle)
			return []Effect{{Kind: EffectDiscard, Reason: ReasonDeviceLost}}
		}
		// no more frames are coming; skip the grace window
		m.beginFinalize(ReasonDeviceLost)
		return m.dispatchIfPending()
	case StateFinalizing:
		return m.dispatchIfPending()
	default:
		return nil
	}
}

// startSession resets the per-session bookkeeping, bumps the epoch and
// enters StateListening.
func (m *Machine) startSession(tr Trigger) Effect {
	m.reset(StateListening)
	m.trigger = tr
	m.epoch++
	return Effect{Kind: EffectStartSession, Trigger: tr}
}

func (m *Machine) beginFinalize(reason FinalizeReason) {
	m.state = StateFinalizing
	m.finalizeReason = reason
	m.framesSinceFinalize = 0
	m.flushStarted = false
}

// dispatchIfPending starts the flush for a finalizing session that has
// not flushed yet: the grace window is cut short and the effect carries
// the session's finalize reason and epoch. Nothing is pending once the
// flush has started.
func (m *Machine) dispatchIfPending() []Effect {
	if m.flushStarted {
		return nil
	}
	m.flushStarted = true
	return []Effect{{Kind: EffectDispatch, Reason: m.finalizeReason, Epoch: m.epoch}}
}

func (m *Machine) reset(s State) {
	m.state = s
	m.framesInSession = 0
	m.labeledInSession = 0
	m.firstSeq = 0
	m.haveFirstSeq = false
	m.sawSpeech = false
	m.framesSinceFinalize = 0
	m.flushStarted = false
}
