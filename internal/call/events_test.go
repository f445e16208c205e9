package call

import (
	"strings"
	"testing"
	"time"
)

func TestParseEnvelopes_IncomingCall(t *testing.T) {
	body := `[{
		"eventType": "Microsoft.Communication.IncomingCall",
		"data": {
			"incomingCallContext": "ctx-token",
			"from": {"kind": "phoneNumber", "phoneNumber": {"value": "+13134445555"}}
		}
	}]`

	parsed, err := ParseEnvelopes([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(parsed))
	}
	in := parsed[0].IncomingCall
	if in == nil {
		t.Fatalf("expected incoming call, got %+v", parsed[0])
	}
	if in.CallerNumber != "+13134445555" {
		t.Fatalf("unexpected caller number %q", in.CallerNumber)
	}
	if in.Context != "ctx-token" {
		t.Fatalf("unexpected context %q", in.Context)
	}
}

func TestParseEnvelopes_LifecycleEvents(t *testing.T) {
	tests := []struct {
		wire string
		want EventType
	}{
		{"Microsoft.Communication.CallConnected", EventConnected},
		{"Microsoft.Communication.RecognizeFailed", EventRecognizeFailed},
		{"Microsoft.Communication.PlayCompleted", EventPlayCompleted},
		{"Microsoft.Communication.CallDisconnected", EventDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			body := `[{"type": "` + tt.wire + `", "data": {"callConnectionId": "call-1"}}]`
			parsed, err := ParseEnvelopes([]byte(body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ev := parsed[0].Event
			if ev == nil {
				t.Fatalf("expected event, got %+v", parsed[0])
			}
			if ev.Type != tt.want {
				t.Fatalf("expected type %q, got %q", tt.want, ev.Type)
			}
			if ev.CallConnectionID != "call-1" {
				t.Fatalf("unexpected call connection id %q", ev.CallConnectionID)
			}
			if ev.ID == "" {
				t.Fatal("expected a generated event id")
			}
			if ev.Timestamp.IsZero() {
				t.Fatal("expected timestamp to be defaulted")
			}
		})
	}
}

func TestParseEnvelopes_RecognizeCompletedCarriesSpeech(t *testing.T) {
	body := `[{
		"type": "Microsoft.Communication.RecognizeCompleted",
		"time": "2024-06-11T14:00:00Z",
		"data": {
			"callConnectionId": "call-1",
			"speechResult": {"speech": "my zip is 48226"}
		}
	}]`

	parsed, err := ParseEnvelopes([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := parsed[0].Event
	if ev == nil {
		t.Fatalf("expected event, got %+v", parsed[0])
	}
	if ev.Speech != "my zip is 48226" {
		t.Fatalf("unexpected speech %q", ev.Speech)
	}
	want := time.Date(2024, time.June, 11, 14, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("expected timestamp %v, got %v", want, ev.Timestamp)
	}
}

func TestParseEnvelopes_SingleObjectBody(t *testing.T) {
	body := `{"type": "Microsoft.Communication.CallConnected", "data": {"callConnectionId": "call-1"}}`

	parsed, err := ParseEnvelopes([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Event == nil {
		t.Fatalf("expected one event from single-object body, got %+v", parsed)
	}
}

func TestParseEnvelopes_BatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	body := `[
		{"type": "Microsoft.Communication.CallConnected", "data": {"callConnectionId": "call-1"}},
		{"type": "Microsoft.Communication.PlayCompleted", "data": {}},
		{"type": "Some.Other.Event", "data": {}},
		{"type": "Microsoft.Communication.CallDisconnected", "data": {"callConnectionId": "call-1"}}
	]`

	parsed, err := ParseEnvelopes([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 4 {
		t.Fatalf("expected 4 results, got %d", len(parsed))
	}
	if parsed[0].Event == nil || parsed[0].Event.Type != EventConnected {
		t.Fatalf("expected connected first, got %+v", parsed[0])
	}
	if parsed[1].Err == nil {
		t.Fatal("expected error for payload missing callConnectionId")
	}
	if parsed[2].Unrecognized != "Some.Other.Event" {
		t.Fatalf("expected unrecognized marker, got %+v", parsed[2])
	}
	if parsed[3].Event == nil || parsed[3].Event.Type != EventDisconnected {
		t.Fatalf("expected disconnected last, got %+v", parsed[3])
	}
}

func TestParseEnvelopes_MissingSpeechResultFails(t *testing.T) {
	body := `[{"type": "Microsoft.Communication.RecognizeCompleted", "data": {"callConnectionId": "call-1"}}]`

	parsed, err := ParseEnvelopes([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed[0].Err == nil {
		t.Fatal("expected error for missing speechResult")
	}
	if !strings.Contains(parsed[0].Err.Error(), "speechResult") {
		t.Fatalf("unexpected error: %v", parsed[0].Err)
	}
}

func TestParseEnvelopes_IncomingCallMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing context",
			body: `[{"eventType": "Microsoft.Communication.IncomingCall",
				"data": {"from": {"phoneNumber": {"value": "+1313"}}}}]`,
			want: "incomingCallContext",
		},
		{
			name: "missing caller",
			body: `[{"eventType": "Microsoft.Communication.IncomingCall",
				"data": {"incomingCallContext": "ctx"}}]`,
			want: "phone number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseEnvelopes([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed[0].Err == nil {
				t.Fatal("expected parse failure")
			}
			if !strings.Contains(parsed[0].Err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, parsed[0].Err)
			}
		})
	}
}

func TestParseEnvelopes_InvalidBody(t *testing.T) {
	if _, err := ParseEnvelopes([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid body")
	}
}
