// Package call provides the telephony orchestration core: the
// call-control client abstraction, webhook event parsing, and the
// per-call session state machine.
package call

import (
	"context"
	"time"
)

// Phase represents where a call session is in its request/response cycle.
type Phase string

const (
	// PhaseAwaitingConnect is the initial phase of a session that has been
	// created but whose recognize command has not been confirmed issued.
	PhaseAwaitingConnect Phase = "awaiting-connect"

	// PhaseAwaitingRecognition means the greeting prompt is playing and the
	// platform is capturing the caller's spoken question.
	PhaseAwaitingRecognition Phase = "awaiting-recognition"

	// PhaseAwaitingPlayback means the response is being spoken to the caller.
	PhaseAwaitingPlayback Phase = "awaiting-playback"

	// PhaseDisconnected is terminal.
	PhaseDisconnected Phase = "disconnected"
)

// IsTerminal returns true if no further transitions are expected.
func (p Phase) IsTerminal() bool {
	return p == PhaseDisconnected
}

// EventType categorizes normalized call lifecycle events.
type EventType string

const (
	EventConnected          EventType = "call.connected"
	EventRecognizeCompleted EventType = "call.recognize_completed"
	EventRecognizeFailed    EventType = "call.recognize_failed"
	EventPlayCompleted      EventType = "call.play_completed"
	EventDisconnected       EventType = "call.disconnected"
)

// Event is a normalized call lifecycle event. All lifecycle events carry
// the platform-assigned call connection id that correlates them to one
// active call; Speech is set only for recognize_completed.
type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	CallConnectionID string    `json:"call_connection_id"`
	Speech           string    `json:"speech,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// IncomingCall is the platform notification that a call is ringing. It
// arrives on a separate event stream from lifecycle events and carries no
// call connection id yet; Context is the opaque token required to answer.
type IncomingCall struct {
	CallerNumber string `json:"caller_number"`
	Context      string `json:"incoming_call_context"`
}

// ParticipantKind distinguishes participant identity types on a call.
type ParticipantKind string

const (
	ParticipantPhoneNumber       ParticipantKind = "phoneNumber"
	ParticipantCommunicationUser ParticipantKind = "communicationUser"
)

// Participant is one identity on an active call.
type Participant struct {
	Kind ParticipantKind `json:"kind"`
	ID   string          `json:"id"`
}

// AnswerInput contains parameters for answering a ringing call.
type AnswerInput struct {
	IncomingCallContext       string
	CallbackURL               string
	CognitiveServicesEndpoint string
}

// PlaceCallInput contains parameters for placing an outbound call.
type PlaceCallInput struct {
	TargetNumber              string
	CallerIDNumber            string
	CallbackURL               string
	CognitiveServicesEndpoint string
}

// RecognizeSpeechInput contains parameters for starting speech recognition.
type RecognizeSpeechInput struct {
	CallConnectionID  string
	TargetNumber      string
	Prompt            string
	VoiceName         string
	EndSilenceTimeout time.Duration
}

// PlayInput contains parameters for playing a TTS response to one participant.
type PlayInput struct {
	CallConnectionID string
	TargetNumber     string
	Text             string
	VoiceName        string
}

// Client is the call-control capability set the orchestrator needs from
// the telephony platform.
type Client interface {
	// Answer accepts a ringing inbound call.
	Answer(ctx context.Context, input *AnswerInput) error

	// PlaceCall starts an outbound call.
	PlaceCall(ctx context.Context, input *PlaceCallInput) error

	// StartRecognizeSpeech plays a prompt and captures spoken input.
	StartRecognizeSpeech(ctx context.Context, input *RecognizeSpeechInput) error

	// Play speaks text to a participant.
	Play(ctx context.Context, input *PlayInput) error

	// ListParticipants returns the current participants of a call.
	ListParticipants(ctx context.Context, callConnectionID string) ([]Participant, error)

	// RemoveParticipant drops a participant from a call.
	RemoveParticipant(ctx context.Context, callConnectionID string, participant Participant) error
}
