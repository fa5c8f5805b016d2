package agent

import (
	"context"
	"errors"
)

// State is the single active mode of the interaction controller.
// Exactly one value is active at a time; it governs which user actions
// are accepted.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateThinking   State = "thinking"
	StateSpeaking   State = "speaking"
	StateProcessing State = "processing"
	StateActing     State = "acting"
)

// Mode selects how the agent operates. It is set only by explicit user
// selection and never changes on its own.
type Mode string

const (
	ModeAutonomous Mode = "autonomous"
	ModeAssisted   Mode = "assisted"
	ModeManual     Mode = "manual"
	ModeVoiceOnly  Mode = "voice-only"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry. Immutable once created; messages are
// appended in creation order and never edited or removed.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// LogEntry is one cosmetic execution-log step. The log is display-only and
// never feeds back into control flow.
type LogEntry struct {
	Step      string `json:"step"`
	Timestamp string `json:"timestamp"`
	Agent     string `json:"agent,omitempty"`
}

// Turn is the role/text pair handed to the remote responder.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Responder converts a user utterance (plus bounded history, last entry
// being the new user turn) into a text reply.
type Responder interface {
	Respond(ctx context.Context, turns []Turn) (string, error)
}

// ErrUnavailable is returned by a Recognizer whose underlying speech
// capability is missing. The controller surfaces it as a blocking notice
// instead of failing silently.
var ErrUnavailable = errors.New("speech recognition unavailable")

// Recognizer provides speech capture sessions.
type Recognizer interface {
	// Start opens a capture session. ErrUnavailable when the capability is
	// missing; other errors reset the controller to idle silently.
	Start(ctx context.Context) (Capture, error)
}

// Capture is one active speech capture session. Updates carries the running
// transcript (all finalized segments plus the current interim segment, the
// interim part replaced on every update). End delivers exactly one event
// when the session finishes, after which no further updates arrive.
type Capture interface {
	Updates() <-chan string
	End() <-chan CaptureEnd
	// Stop requests a normal end of the session; the End event still fires.
	Stop()
}

// AudioFeeder is implemented by capture sessions that transcribe
// caller-supplied PCM rather than capturing audio themselves.
type AudioFeeder interface {
	SendPCM(pcm []byte) error
}

// CaptureEnd reports how a capture session finished. Transcript holds the
// accumulated finalized text ("" when nothing was finalized or on error).
type CaptureEnd struct {
	Transcript string
	Err        error
}

// Speaker synthesizes spoken output. The returned channel delivers exactly
// one terminal event per invocation: nil on normal end, an error otherwise.
// The controller never starts a second utterance before the terminal event
// of the first.
type Speaker interface {
	Speak(ctx context.Context, text string) <-chan error
}

// Events lets the host react to controller activity. All callbacks are
// optional and invoked outside the controller's lock.
type Events struct {
	// OnState fires on every interaction state change.
	OnState func(State)
	// OnMessage fires when a conversation message is appended.
	OnMessage func(Message)
	// OnLog fires when an execution-log entry is recorded.
	OnLog func(LogEntry)
	// OnTranscript carries the running speech transcript for display;
	// an empty string clears it.
	OnTranscript func(text string)
	// OnActivity delivers the autonomous background activity list
	// (most recent last, capped at ten entries).
	OnActivity func(entries []string)
	// OnNotice surfaces a blocking user-facing notice, e.g. when speech
	// capture is unavailable.
	OnNotice func(text string)
}
