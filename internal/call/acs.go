package call

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const acsAPIVersion = "2023-10-15"

// ACSClient implements Client against the Azure Communication Services
// Call Automation REST API. Requests are authenticated with the HMAC
// scheme derived from the connection string access key.
//
// Thread safety: ACSClient is safe for concurrent use.
type ACSClient struct {
	endpoint  *url.URL
	accessKey []byte
	client    *http.Client
	now       func() time.Time
}

// ACSConfig holds configuration for the ACS client.
type ACSConfig struct {
	// ConnectionString is the resource connection string in
	// "endpoint=https://...;accesskey=..." form (required).
	ConnectionString string

	// HTTPClient overrides the default 30s-timeout client (tests).
	HTTPClient *http.Client
}

// NewACSClient creates a call-control client from a connection string.
func NewACSClient(cfg ACSConfig) (*ACSClient, error) {
	endpoint, key, err := parseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &ACSClient{
		endpoint:  endpoint,
		accessKey: key,
		client:    httpClient,
		now:       time.Now,
	}, nil
}

func parseConnectionString(s string) (*url.URL, []byte, error) {
	var endpoint, accessKey string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, nil, fmt.Errorf("acs: malformed connection string segment %q", part)
		}
		switch strings.ToLower(key) {
		case "endpoint":
			endpoint = value
		case "accesskey":
			accessKey = value
		}
	}
	if endpoint == "" || accessKey == "" {
		return nil, nil, errors.New("acs: connection string must contain endpoint and accesskey")
	}

	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, nil, fmt.Errorf("acs: invalid endpoint: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return nil, nil, fmt.Errorf("acs: invalid access key: %w", err)
	}
	return u, key, nil
}

// Wire identifier shapes for the call automation API.
type acsIdentifier struct {
	Kind        string          `json:"kind"`
	RawID       string          `json:"rawId,omitempty"`
	PhoneNumber *acsPhoneNumber `json:"phoneNumber,omitempty"`
}

type acsPhoneNumber struct {
	Value string `json:"value"`
}

func phoneIdentifier(number string) acsIdentifier {
	return acsIdentifier{
		Kind:        string(ParticipantPhoneNumber),
		RawID:       "4:" + strings.TrimPrefix(number, "+"),
		PhoneNumber: &acsPhoneNumber{Value: number},
	}
}

type acsTextSource struct {
	Kind string `json:"kind"`
	Text struct {
		Text      string `json:"text"`
		VoiceName string `json:"voiceName,omitempty"`
	} `json:"text"`
}

func textSource(text, voiceName string) acsTextSource {
	var src acsTextSource
	src.Kind = "text"
	src.Text.Text = text
	src.Text.VoiceName = voiceName
	return src
}

// Answer accepts a ringing inbound call.
func (c *ACSClient) Answer(ctx context.Context, input *AnswerInput) error {
	if input.IncomingCallContext == "" {
		return errors.New("acs: incoming call context is required")
	}
	payload := map[string]any{
		"incomingCallContext": input.IncomingCallContext,
		"callbackUri":         input.CallbackURL,
	}
	if input.CognitiveServicesEndpoint != "" {
		payload["callIntelligenceOptions"] = map[string]any{
			"cognitiveServicesEndpoint": input.CognitiveServicesEndpoint,
		}
	}
	_, err := c.apiRequest(ctx, http.MethodPost, "/calling/callConnections:answer", payload)
	if err != nil {
		return fmt.Errorf("acs: failed to answer call: %w", err)
	}
	return nil
}

// PlaceCall starts an outbound call.
func (c *ACSClient) PlaceCall(ctx context.Context, input *PlaceCallInput) error {
	payload := map[string]any{
		"targets":              []acsIdentifier{phoneIdentifier(input.TargetNumber)},
		"sourceCallerIdNumber": acsPhoneNumber{Value: input.CallerIDNumber},
		"callbackUri":          input.CallbackURL,
	}
	if input.CognitiveServicesEndpoint != "" {
		payload["callIntelligenceOptions"] = map[string]any{
			"cognitiveServicesEndpoint": input.CognitiveServicesEndpoint,
		}
	}
	_, err := c.apiRequest(ctx, http.MethodPost, "/calling/callConnections", payload)
	if err != nil {
		return fmt.Errorf("acs: failed to place call: %w", err)
	}
	return nil
}

// StartRecognizeSpeech plays a prompt and captures spoken input from the
// target participant.
func (c *ACSClient) StartRecognizeSpeech(ctx context.Context, input *RecognizeSpeechInput) error {
	path := fmt.Sprintf("/calling/callConnections/%s:recognize", url.PathEscape(input.CallConnectionID))
	payload := map[string]any{
		"recognizeInputType": "speech",
		"playPrompt":         textSource(input.Prompt, input.VoiceName),
		"recognizeOptions": map[string]any{
			"targetParticipant": phoneIdentifier(input.TargetNumber),
			"speechOptions": map[string]any{
				"endSilenceTimeoutInMs": input.EndSilenceTimeout.Milliseconds(),
			},
		},
	}
	if _, err := c.apiRequest(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("acs: failed to start recognition: %w", err)
	}
	return nil
}

// Play speaks text to the target participant.
func (c *ACSClient) Play(ctx context.Context, input *PlayInput) error {
	path := fmt.Sprintf("/calling/callConnections/%s:play", url.PathEscape(input.CallConnectionID))
	payload := map[string]any{
		"playSources": []acsTextSource{textSource(input.Text, input.VoiceName)},
		"playTo":      []acsIdentifier{phoneIdentifier(input.TargetNumber)},
	}
	if _, err := c.apiRequest(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("acs: failed to play: %w", err)
	}
	return nil
}

// ListParticipants returns the current participants of a call.
func (c *ACSClient) ListParticipants(ctx context.Context, callConnectionID string) ([]Participant, error) {
	path := fmt.Sprintf("/calling/callConnections/%s/participants", url.PathEscape(callConnectionID))
	body, err := c.apiRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("acs: failed to list participants: %w", err)
	}

	var result struct {
		Values []struct {
			Identifier acsIdentifier `json:"identifier"`
		} `json:"values"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("acs: failed to parse participants: %w", err)
	}

	participants := make([]Participant, 0, len(result.Values))
	for _, v := range result.Values {
		p := Participant{Kind: ParticipantKind(v.Identifier.Kind), ID: v.Identifier.RawID}
		if v.Identifier.PhoneNumber != nil {
			p.ID = v.Identifier.PhoneNumber.Value
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// RemoveParticipant drops a participant from a call.
func (c *ACSClient) RemoveParticipant(ctx context.Context, callConnectionID string, participant Participant) error {
	path := fmt.Sprintf("/calling/callConnections/%s/participants:remove", url.PathEscape(callConnectionID))
	identifier := acsIdentifier{Kind: string(participant.Kind), RawID: participant.ID}
	if participant.Kind == ParticipantPhoneNumber {
		identifier = phoneIdentifier(participant.ID)
	}
	payload := map[string]any{
		"participantToRemove": identifier,
	}
	if _, err := c.apiRequest(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("acs: failed to remove participant: %w", err)
	}
	return nil
}

// apiRequest makes a signed request to the call automation API.
func (c *ACSClient) apiRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	reqURL := *c.endpoint
	reqURL.Path = path
	q := reqURL.Query()
	q.Set("api-version", acsAPIVersion)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, bodyBytes)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, (1<<20)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > 1<<20 {
		return nil, fmt.Errorf("API response too large (%d bytes)", len(body))
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// signRequest applies the HMAC-SHA256 authentication scheme: the string
// to sign is "VERB\npath?query\ndate;host;content-hash".
func (c *ACSClient) signRequest(req *http.Request, body []byte) {
	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])
	date := c.now().UTC().Format(http.TimeFormat)

	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}

	stringToSign := req.Method + "\n" + pathAndQuery + "\n" + date + ";" + req.URL.Host + ";" + contentHashB64

	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHashB64)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
