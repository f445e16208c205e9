package call

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Wire event types delivered by the call automation platform.
const (
	wireIncomingCall       = "Microsoft.Communication.IncomingCall"
	wireCallConnected      = "Microsoft.Communication.CallConnected"
	wireRecognizeCompleted = "Microsoft.Communication.RecognizeCompleted"
	wireRecognizeFailed    = "Microsoft.Communication.RecognizeFailed"
	wirePlayCompleted      = "Microsoft.Communication.PlayCompleted"
	wireCallDisconnected   = "Microsoft.Communication.CallDisconnected"
)

// envelope is the outer cloud-event structure on both webhook streams.
// EventGrid deliveries use "eventType", cloud-event deliveries use "type";
// both are accepted.
type envelope struct {
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Time      time.Time       `json:"time"`
}

func (e *envelope) kind() string {
	if e.Type != "" {
		return e.Type
	}
	return e.EventType
}

// ParsedEnvelope is the result of parsing one envelope. Exactly one of
// Event, IncomingCall, or Err is set, unless the envelope type was not
// recognized, in which case Unrecognized carries the wire type.
type ParsedEnvelope struct {
	Event        *Event
	IncomingCall *IncomingCall
	Unrecognized string
	Err          error
}

type incomingCallData struct {
	IncomingCallContext string `json:"incomingCallContext"`
	From                struct {
		Kind        string `json:"kind"`
		PhoneNumber struct {
			Value string `json:"value"`
		} `json:"phoneNumber"`
	} `json:"from"`
}

type lifecycleData struct {
	CallConnectionID string `json:"callConnectionId"`
	SpeechResult     *struct {
		Speech string `json:"speech"`
	} `json:"speechResult"`
}

// ParseEnvelopes parses a raw webhook body (a JSON array of envelopes, or
// a single envelope object) into one ParsedEnvelope per input envelope,
// preserving order. A malformed payload fails only its own envelope; the
// rest of the batch is still returned. The error return is non-nil only
// when the body itself is not valid JSON.
func ParseEnvelopes(body []byte) ([]ParsedEnvelope, error) {
	var envelopes []envelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		var single envelope
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, fmt.Errorf("call: invalid webhook body: %w", err)
		}
		envelopes = []envelope{single}
	}

	results := make([]ParsedEnvelope, 0, len(envelopes))
	for _, env := range envelopes {
		results = append(results, parseEnvelope(&env))
	}
	return results, nil
}

func parseEnvelope(env *envelope) ParsedEnvelope {
	kind := env.kind()

	if kind == wireIncomingCall {
		var data incomingCallData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return ParsedEnvelope{Err: fmt.Errorf("call: malformed %s payload: %w", kind, err)}
		}
		if data.IncomingCallContext == "" {
			return ParsedEnvelope{Err: fmt.Errorf("call: %s payload missing incomingCallContext", kind)}
		}
		if data.From.PhoneNumber.Value == "" {
			return ParsedEnvelope{Err: fmt.Errorf("call: %s payload missing caller phone number", kind)}
		}
		return ParsedEnvelope{IncomingCall: &IncomingCall{
			CallerNumber: data.From.PhoneNumber.Value,
			Context:      data.IncomingCallContext,
		}}
	}

	eventType, ok := lifecycleEventType(kind)
	if !ok {
		return ParsedEnvelope{Unrecognized: kind}
	}

	var data lifecycleData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return ParsedEnvelope{Err: fmt.Errorf("call: malformed %s payload: %w", kind, err)}
	}
	if data.CallConnectionID == "" {
		return ParsedEnvelope{Err: fmt.Errorf("call: %s payload missing callConnectionId", kind)}
	}

	event := &Event{
		ID:               uuid.New().String(),
		Type:             eventType,
		CallConnectionID: data.CallConnectionID,
		Timestamp:        env.Time,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if eventType == EventRecognizeCompleted {
		if data.SpeechResult == nil {
			return ParsedEnvelope{Err: fmt.Errorf("call: %s payload missing speechResult", kind)}
		}
		event.Speech = data.SpeechResult.Speech
	}
	return ParsedEnvelope{Event: event}
}

func lifecycleEventType(kind string) (EventType, bool) {
	switch kind {
	case wireCallConnected:
		return EventConnected, true
	case wireRecognizeCompleted:
		return EventRecognizeCompleted, true
	case wireRecognizeFailed:
		return EventRecognizeFailed, true
	case wirePlayCompleted:
		return EventPlayCompleted, true
	case wireCallDisconnected:
		return EventDisconnected, true
	}
	return "", false
}
