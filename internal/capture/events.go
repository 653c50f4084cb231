package capture

import (
	"errors"
	"time"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
)

// ErrModelUnavailable indicates that a classification or wake model cannot
// serve the pipeline — it failed to load or stopped answering. The condition
// is non-fatal: capture continues under manual control.
var ErrModelUnavailable = errors.New("capture: model unavailable")

// State is the capture pipeline's top-level state.
type State int

const (
	// StateIdle means no session is active; triggers are accepted.
	StateIdle State = iota

	// StateListening means a session is accumulating frames.
	StateListening

	// StateFinalizing means a finalize decision was made; the grace window
	// and the asynchronous flush run here.
	StateFinalizing

	// StateSuspended means the chat backend is streaming a response; wake
	// detections are discarded so the pipeline cannot hear the assistant.
	StateSuspended
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFinalizing:
		return "finalizing"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Trigger records what opened a session.
type Trigger int

const (
	// TriggerManual marks sessions opened by hotkey or HTTP.
	TriggerManual Trigger = iota

	// TriggerWakeWord marks sessions opened by a wake-word detection.
	TriggerWakeWord
)

// String returns the snake_case trigger name used in metrics and events.
func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerWakeWord:
		return "wake_word"
	default:
		return "unknown"
	}
}

// Label is the classifier's verdict for one frame.
type Label int

const (
	// LabelSpeech marks a frame carrying speech. Unclassifiable frames
	// default to speech so a broken model can never cut a session short.
	LabelSpeech Label = iota

	// LabelSilence marks a frame without speech.
	LabelSilence
)

// String returns the lowercase label name.
func (l Label) String() string {
	switch l {
	case LabelSpeech:
		return "speech"
	case LabelSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// FinalizeReason records why a session left Listening.
type FinalizeReason int

const (
	// ReasonSilence: the silence timeout elapsed.
	ReasonSilence FinalizeReason = iota

	// ReasonStop: an explicit Stop or Toggle ended the session.
	ReasonStop

	// ReasonMaxDuration: the session hit the captured-audio cap.
	ReasonMaxDuration

	// ReasonNoSpeech: a wake session saw no speech at all and was discarded.
	ReasonNoSpeech

	// ReasonDeviceLost: the capture device disappeared mid-session.
	ReasonDeviceLost

	// ReasonCanceled: the user threw the session away.
	ReasonCanceled
)

// String returns the snake_case reason used in metrics and events.
func (r FinalizeReason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonStop:
		return "stop"
	case ReasonMaxDuration:
		return "max_duration"
	case ReasonNoSpeech:
		return "no_speech"
	case ReasonDeviceLost:
		return "device_lost"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// WakeEvent is one debounced wake-word detection.
type WakeEvent struct {
	// At is when the qualifying frame was scanned.
	At time.Time

	// PhraseID identifies the matched keyword model.
	PhraseID string

	// Confidence is the engine's score for the match.
	Confidence float64
}

// EventKind discriminates the events flowing through the controller channel.
type EventKind int

const (
	// EventFrame delivers one captured frame on the lossless path.
	EventFrame EventKind = iota

	// EventLabel delivers the classifier's verdict for one frame.
	EventLabel

	// EventWake delivers a debounced wake detection.
	EventWake

	// EventStart requests a manual session start (hotkey hold, HTTP).
	EventStart

	// EventStop requests the running session be finalized.
	EventStop

	// EventToggle flips between starting and finalizing.
	EventToggle

	// EventCancel throws the running session away.
	EventCancel

	// EventFlushDone reports a finished dispatch, successful or not.
	EventFlushDone

	// EventResponseStarted reports the chat backend began streaming.
	EventResponseStarted

	// EventResponseComplete reports the chat backend finished streaming.
	EventResponseComplete

	// EventDeviceLost reports the capture device disappeared.
	EventDeviceLost

	// EventPing is a liveness probe; it changes nothing.
	EventPing
)

// String returns the snake_case event name.
func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventLabel:
		return "label"
	case EventWake:
		return "wake"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventToggle:
		return "toggle"
	case EventCancel:
		return "cancel"
	case EventFlushDone:
		return "flush_done"
	case EventResponseStarted:
		return "response_started"
	case EventResponseComplete:
		return "response_complete"
	case EventDeviceLost:
		return "device_lost"
	case EventPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Event is one item on the controller's single ordered channel. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Frame is the captured frame for EventFrame.
	Frame audio.Frame

	// Seq, Label and SilenceMs describe a classifier verdict (EventLabel).
	// SilenceMs is the running silence counter after this frame; it resets
	// to zero on every speech label.
	Seq       uint64
	Label     Label
	SilenceMs int

	// Wake is the detection payload for EventWake.
	Wake WakeEvent

	// Epoch identifies which machine session a flush belongs to
	// (EventFlushDone).
	Epoch uint64

	// Transcript and DispatchErr carry the dispatch outcome (EventFlushDone).
	Transcript  stt.Transcript
	DispatchErr error
}

// Notification is what the controller fans out to subscribers: state
// changes, transcription results, degraded components, and device loss.
// It marshals directly onto the control surface's event stream.
type Notification struct {
	// Type is one of the Notify* constants.
	Type string `json:"type"`

	// Time is when the controller emitted the notification.
	Time time.Time `json:"time"`

	// State is the pipeline state after the change (state_changed).
	State string `json:"state,omitempty"`

	// SessionID identifies the session the notification concerns.
	SessionID string `json:"session_id,omitempty"`

	// Trigger is the session trigger (state_changed, transcription).
	Trigger string `json:"trigger,omitempty"`

	// Reason is the finalize or discard reason, when one applies.
	Reason string `json:"reason,omitempty"`

	// Text is the transcription result (transcription).
	Text string `json:"text,omitempty"`

	// Component names the degraded part (degraded).
	Component string `json:"component,omitempty"`

	// Error carries a human-readable failure description.
	Error string `json:"error,omitempty"`
}

// Notification types.
const (
	// NotifyStateChanged reports a pipeline state transition.
	NotifyStateChanged = "state_changed"

	// NotifyTranscription reports a dispatch outcome: Text on success,
	// Error on failure.
	NotifyTranscription = "transcription"

	// NotifyDegraded reports a component entering degraded mode.
	NotifyDegraded = "degraded"

	// NotifyDeviceLost reports the capture device disappearing.
	NotifyDeviceLost = "device_lost"

	// NotifyRestartRequired reports an edited config that needs a restart.
	NotifyRestartRequired = "restart_required"
)
