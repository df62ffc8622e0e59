package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound event names, client to service.
const (
	EventGeneratePodcast = "generate_podcast"
	EventGenerateNews    = "generate_news_podcast"
)

// Inbound event names, service to client.
const (
	EventConnect    = "connect"
	EventProgress   = "progress"
	EventStatus     = "status"
	EventComplete   = "complete"
	EventError      = "error"
	EventDisconnect = "disconnect"
)

// Outbound is a job request that can be sent over a channel.
type Outbound interface {
	Event() string
}

// PodcastRequest is the generate_podcast payload. At most one of the key
// fields is set, matching TTSModel.
type PodcastRequest struct {
	URLs                 []string `json:"urls"`
	ImageURLs            []string `json:"image_urls,omitempty"`
	Name                 string   `json:"name"`
	Tagline              string   `json:"tagline"`
	IsLongForm           bool     `json:"is_long_form"`
	Creativity           float64  `json:"creativity"`
	ConversationStyle    []string `json:"conversation_style"`
	DialogueStructure    []string `json:"dialogue_structure"`
	EngagementTechniques []string `json:"engagement_techniques"`
	RolesPerson1         string   `json:"roles_person1"`
	RolesPerson2         string   `json:"roles_person2"`
	UserInstructions     string   `json:"user_instructions,omitempty"`
	TTSModel             string   `json:"tts_model"`
	GoogleKey            string   `json:"google_key,omitempty"`
	OpenAIKey            string   `json:"openai_key,omitempty"`
	ElevenLabsKey        string   `json:"elevenlabs_key,omitempty"`
}

func (PodcastRequest) Event() string { return EventGeneratePodcast }

// NewsRequest is the generate_news_podcast payload.
type NewsRequest struct {
	Topics    string `json:"topics"`
	GoogleKey string `json:"google_key"`
}

func (NewsRequest) Event() string { return EventGenerateNews }

// Envelope frames every message on the websocket, exec and nats transports.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server-side payloads.
type Progress struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

type Status struct {
	Message string `json:"message"`
}

type Complete struct {
	AudioURL   string `json:"audioUrl"`
	Transcript string `json:"transcript"`
}

type Failure struct {
	Message string `json:"message"`
}

// Inbound is a decoded service event. Err carries the transport cause of a
// disconnect and is nil otherwise.
type Inbound struct {
	Kind       string
	Progress   float64
	Message    string
	AudioURL   string
	Transcript string
	Err        error
}

// Terminal reports whether the event ends a session.
func (in Inbound) Terminal() bool {
	switch in.Kind {
	case EventComplete, EventError, EventDisconnect:
		return true
	}
	return false
}

var ErrUnknownEvent = errors.New("protocol: unknown event")

// NewEnvelope marshals payload under the given event name. A nil payload
// produces an envelope without data.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Encode frames an outbound request.
func Encode(out Outbound) ([]byte, error) {
	env, err := NewEnvelope(out.Event(), out)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses one framed message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return env, errors.New("decode envelope: missing event name")
	}
	return env, nil
}

// DecodeRequest turns an envelope received by a service into a request.
func DecodeRequest(env Envelope) (Outbound, error) {
	switch env.Event {
	case EventGeneratePodcast:
		var req PodcastRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return req, nil
	case EventGenerateNews:
		var req NewsRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return req, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
}

// Decode parses a framed service event.
func Decode(data []byte) (Inbound, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return Inbound{}, err
	}
	return DecodeInbound(env)
}

// DecodeInbound interprets the payload of a service event. status accepts
// both a bare string and an object with a message field.
func DecodeInbound(env Envelope) (Inbound, error) {
	in := Inbound{Kind: env.Event}
	switch env.Event {
	case EventConnect, EventDisconnect:
		return in, nil
	case EventProgress:
		var p Progress
		if err := unmarshalOptional(env.Data, &p); err != nil {
			return in, fmt.Errorf("decode progress: %w", err)
		}
		in.Progress = p.Progress
		in.Message = p.Message
	case EventStatus:
		msg, err := decodeMessage(env.Data)
		if err != nil {
			return in, fmt.Errorf("decode status: %w", err)
		}
		in.Message = msg
	case EventComplete:
		var c Complete
		if err := unmarshalOptional(env.Data, &c); err != nil {
			return in, fmt.Errorf("decode complete: %w", err)
		}
		in.AudioURL = c.AudioURL
		in.Transcript = c.Transcript
	case EventError:
		msg, err := decodeMessage(env.Data)
		if err != nil {
			return in, fmt.Errorf("decode error: %w", err)
		}
		in.Message = msg
	default:
		return in, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}
	return in, nil
}

func decodeMessage(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var obj Status
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return "", err
	}
	return obj.Message, nil
}

func unmarshalOptional(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

// Bus subjects for the nats transport.
func EventsSubject(prefix, sessionID string) string {
	return prefix + "." + sessionID + ".events"
}

func RequestSubject(prefix, sessionID string) string {
	return prefix + "." + sessionID + ".request"
}

// RequestWildcard matches the request subject of every session.
func RequestWildcard(prefix string) string {
	return prefix + ".*.request"
}
