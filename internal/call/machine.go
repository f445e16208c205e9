package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/hotline/internal/forecast"
	"github.com/haasonsaas/hotline/internal/observability"
)

const (
	// GreetingPrompt is spoken while recognition starts.
	GreetingPrompt = "Thank you for calling The Hotline. What question can I answer?"

	// InvalidZipMessage is spoken when the utterance contains no ZIP code.
	InvalidZipMessage = "You did not provide a valid US zipcode"

	// ForecastFallbackMessage is spoken when the forecast lookup fails.
	ForecastFallbackMessage = "Sorry, I could not retrieve the forecast right now. Please try again later."

	// DefaultEndSilenceTimeout is how long the platform waits for silence
	// before completing recognition.
	DefaultEndSilenceTimeout = 2 * time.Second
)

// zipPattern matches the first 5-digit run in an utterance.
var zipPattern = regexp.MustCompile(`\d{5}`)

// Session is the in-memory record of one call's orchestration phase.
// Sessions are best-effort: losing one degrades to treating the next
// event for that call connection id as stray, which is logged and dropped.
type Session struct {
	CallConnectionID string
	TargetNumber     string
	Phase            Phase
	StartedAt        time.Time
	LastEventAt      time.Time
}

// Machine drives call sessions through their lifecycle. Each webhook
// event is handled independently; sessions for different call connection
// ids never interact, and no lock is held across an outbound command.
//
// Thread safety: Machine is safe for concurrent use.
type Machine struct {
	client   Client
	resolver forecast.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics

	voiceName  string
	endSilence time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// MachineConfig holds configuration for the session machine.
type MachineConfig struct {
	// Client issues call-control commands (required).
	Client Client

	// Resolver answers ZIP code forecast lookups (required).
	Resolver forecast.Resolver

	// Logger receives per-event diagnostics (defaults to slog.Default).
	Logger *slog.Logger

	// Metrics receives session and command metrics (optional).
	Metrics *observability.Metrics

	// VoiceName selects the TTS voice for prompts and responses.
	VoiceName string

	// EndSilenceTimeout overrides DefaultEndSilenceTimeout.
	EndSilenceTimeout time.Duration
}

// NewMachine creates a session state machine.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Client == nil {
		return nil, errors.New("call: client is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("call: resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endSilence := cfg.EndSilenceTimeout
	if endSilence == 0 {
		endSilence = DefaultEndSilenceTimeout
	}

	return &Machine{
		client:     cfg.Client,
		resolver:   cfg.Resolver,
		logger:     logger,
		metrics:    cfg.Metrics,
		voiceName:  cfg.VoiceName,
		endSilence: endSilence,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}, nil
}

// HandleEvent processes one lifecycle event. The target number is the
// routing parameter recovered from the callback URL; it binds the call
// connection id to the phone number the call is conversing with, since
// the events themselves do not carry it.
//
// Failures are contained per event: an error return means a command or
// lookup failed for this call, never that the batch should abort.
func (m *Machine) HandleEvent(ctx context.Context, event *Event, targetNumber string) error {
	target := normalizeNumber(targetNumber)

	switch event.Type {
	case EventConnected:
		return m.handleConnected(ctx, event, target)
	case EventRecognizeCompleted:
		return m.handleRecognized(ctx, event, event.Speech)
	case EventRecognizeFailed:
		// Recognition failures (silence, no speech detected) get the same
		// response as an utterance with no ZIP code in it.
		return m.handleRecognized(ctx, event, "")
	case EventPlayCompleted:
		return m.handlePlayCompleted(ctx, event)
	case EventDisconnected:
		m.handleDisconnected(event)
		return nil
	default:
		m.logger.Warn("ignoring unrecognized event type",
			"type", event.Type, "call_connection_id", event.CallConnectionID)
		return nil
	}
}

// handleConnected creates the session and starts recognition. Creation is
// the idempotence guard: a replayed Connected event for a tracked call
// connection id must not re-issue the recognize command.
func (m *Machine) handleConnected(ctx context.Context, event *Event, target string) error {
	now := m.now()

	m.mu.Lock()
	if _, ok := m.sessions[event.CallConnectionID]; ok {
		m.mu.Unlock()
		m.logger.Info("ignoring replayed connected event",
			"call_connection_id", event.CallConnectionID)
		return nil
	}
	m.sessions[event.CallConnectionID] = &Session{
		CallConnectionID: event.CallConnectionID,
		TargetNumber:     target,
		Phase:            PhaseAwaitingConnect,
		StartedAt:        now,
		LastEventAt:      now,
	}
	m.mu.Unlock()
	m.sessionStarted()

	err := m.client.StartRecognizeSpeech(ctx, &RecognizeSpeechInput{
		CallConnectionID:  event.CallConnectionID,
		TargetNumber:      target,
		Prompt:            GreetingPrompt,
		VoiceName:         m.voiceName,
		EndSilenceTimeout: m.endSilence,
	})
	m.countCommand("recognize", err)
	if err != nil {
		m.logger.Error("failed to start recognition",
			"call_connection_id", event.CallConnectionID, "error", err)
		return fmt.Errorf("call: start recognition: %w", err)
	}

	m.setPhase(event.CallConnectionID, PhaseAwaitingRecognition)
	m.logger.Info("call connected, listening",
		"call_connection_id", event.CallConnectionID, "target", target)
	return nil
}

// handleRecognized builds the spoken response for an utterance and plays
// it. The phase transition is claimed under the lock before the outbound
// commands so a redelivered recognition event cannot trigger a second
// Play, then the forecast lookup and Play run unlocked.
func (m *Machine) handleRecognized(ctx context.Context, event *Event, speech string) error {
	m.mu.Lock()
	sess, ok := m.sessions[event.CallConnectionID]
	if !ok {
		m.mu.Unlock()
		m.logger.Info("ignoring recognition event for unknown session",
			"call_connection_id", event.CallConnectionID)
		return nil
	}
	if sess.Phase != PhaseAwaitingRecognition {
		m.mu.Unlock()
		m.logger.Info("ignoring recognition event out of phase",
			"call_connection_id", event.CallConnectionID, "phase", sess.Phase)
		return nil
	}
	sess.Phase = PhaseAwaitingPlayback
	sess.LastEventAt = m.now()
	target := sess.TargetNumber
	m.mu.Unlock()

	response := m.responseFor(ctx, event.CallConnectionID, speech)

	err := m.client.Play(ctx, &PlayInput{
		CallConnectionID: event.CallConnectionID,
		TargetNumber:     target,
		Text:             response,
		VoiceName:        m.voiceName,
	})
	m.countCommand("play", err)
	if err != nil {
		m.logger.Error("failed to play response",
			"call_connection_id", event.CallConnectionID, "error", err)
		return fmt.Errorf("call: play response: %w", err)
	}
	return nil
}

// responseFor maps an utterance to the text spoken back: the forecast for
// the first embedded ZIP code, the fixed invalid-zipcode line when there
// is none, or the fallback line when the lookup fails.
func (m *Machine) responseFor(ctx context.Context, callConnectionID, speech string) string {
	zip := zipPattern.FindString(speech)
	if zip == "" {
		m.logger.Info("no zipcode in utterance",
			"call_connection_id", callConnectionID)
		return InvalidZipMessage
	}

	start := m.now()
	report, err := m.resolver.Forecast(ctx, zip)
	m.recordForecast(err, time.Since(start))
	if err != nil {
		m.logger.Error("forecast lookup failed",
			"call_connection_id", callConnectionID, "zip", zip, "error", err)
		return ForecastFallbackMessage
	}
	return report.Sentence()
}

// handlePlayCompleted removes the caller from the call. The session is
// discarded when the transition is claimed, so RemoveParticipant is
// issued at most once per session; its completion is not awaited.
func (m *Machine) handlePlayCompleted(ctx context.Context, event *Event) error {
	m.mu.Lock()
	sess, ok := m.sessions[event.CallConnectionID]
	if !ok || sess.Phase != PhaseAwaitingPlayback {
		phase := Phase("")
		if ok {
			phase = sess.Phase
		}
		m.mu.Unlock()
		m.logger.Info("ignoring play completed event",
			"call_connection_id", event.CallConnectionID, "tracked", ok, "phase", phase)
		return nil
	}
	delete(m.sessions, event.CallConnectionID)
	m.mu.Unlock()
	m.sessionEnded()

	participants, err := m.client.ListParticipants(ctx, event.CallConnectionID)
	m.countCommand("list_participants", err)
	if err != nil {
		m.logger.Error("failed to list participants",
			"call_connection_id", event.CallConnectionID, "error", err)
		return fmt.Errorf("call: list participants: %w", err)
	}

	for _, p := range participants {
		if p.Kind != ParticipantPhoneNumber {
			continue
		}
		err := m.client.RemoveParticipant(ctx, event.CallConnectionID, p)
		m.countCommand("remove_participant", err)
		if err != nil {
			m.logger.Error("failed to remove participant",
				"call_connection_id", event.CallConnectionID, "participant", p.ID, "error", err)
			return fmt.Errorf("call: remove participant: %w", err)
		}
		m.logger.Info("call complete, participant removed",
			"call_connection_id", event.CallConnectionID)
		return nil
	}

	m.logger.Warn("no phone participant to remove",
		"call_connection_id", event.CallConnectionID)
	return nil
}

// handleDisconnected discards session state. The platform can disconnect
// from any phase, so this is the only event with no precondition.
func (m *Machine) handleDisconnected(event *Event) {
	m.mu.Lock()
	_, ok := m.sessions[event.CallConnectionID]
	if ok {
		delete(m.sessions, event.CallConnectionID)
	}
	m.mu.Unlock()

	if ok {
		m.sessionEnded()
	}
	m.logger.Info("call disconnected",
		"call_connection_id", event.CallConnectionID, "tracked", ok)
}

// Snapshot returns the session for a call connection id, if tracked.
func (m *Machine) Snapshot(callConnectionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[callConnectionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// ActiveSessions returns the number of tracked sessions.
func (m *Machine) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions that have not seen an event within maxIdle and
// returns how many were removed. A call cannot live forever; sessions
// whose expected next event never arrived are reclaimed here.
func (m *Machine) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	removed := 0

	m.mu.Lock()
	for id, sess := range m.sessions {
		if sess.LastEventAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	for i := 0; i < removed; i++ {
		m.sessionEnded()
	}
	if removed > 0 {
		m.logger.Info("swept idle call sessions", "removed", removed)
	}
	return removed
}

func (m *Machine) setPhase(callConnectionID string, phase Phase) {
	m.mu.Lock()
	if sess, ok := m.sessions[callConnectionID]; ok {
		sess.Phase = phase
		sess.LastEventAt = m.now()
	}
	m.mu.Unlock()
}

func (m *Machine) countCommand(command string, err error) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.CommandIssued(command, status)
}

func (m *Machine) recordForecast(err error, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, forecast.ErrNoLocationFound):
		status = "no_location"
	case errors.Is(err, forecast.ErrForecastUnavailable):
		status = "unavailable"
	default:
		status = "upstream_error"
	}
	m.metrics.RecordForecastLookup(status, elapsed.Seconds())
}

func (m *Machine) sessionStarted() {
	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
}

func (m *Machine) sessionEnded() {
	if m.metrics != nil {
		m.metrics.SessionEnded()
	}
}

// normalizeNumber restores the "+" prefix stripped when the number was
// threaded through the callback URL query parameter.
func normalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}
