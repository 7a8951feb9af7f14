package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage       MessageType = "client_message"
	TypeClientControl       MessageType = "client_control"
	TypeAssistantMessage    MessageType = "assistant_message"
	TypeStateEvent          MessageType = "state_event"
	TypeAssistantAudioChunk MessageType = "assistant_audio_chunk"
	TypeErrorEvent          MessageType = "error_event"
)

// Control actions accepted in client_control frames.
const (
	ActionClear      = "clear"
	ActionStarter    = "starter"
	ActionStopAudio  = "stop_audio"
	ActionAudioOn    = "audio_on"
	ActionAudioOff   = "audio_off"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is one user utterance.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

// ClientControl carries out-of-band conversation actions.
type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// AssistantMessage is a committed assistant turn.
type AssistantMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
	Fallback  bool        `json:"fallback,omitempty"`
}

// RenderMessage is one transcript entry inside a state event.
type RenderMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	AtMs    int64  `json:"at_ms"`
}

// StateEvent carries the full presentation state. It is a projection:
// re-sending it with unchanged inputs renders identically.
type StateEvent struct {
	Type         MessageType     `json:"type"`
	SessionID    string          `json:"session_id"`
	Composing    bool            `json:"composing"`
	Synthesizing bool            `json:"synthesizing"`
	Messages     []RenderMessage `json:"messages"`
}

// AssistantAudioChunk is one framed slice of synthesized reply audio.
type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	HandleID    string      `json:"handle_id"`
	Seq         int         `json:"seq"`
	ContentType string      `json:"content_type"`
	AudioBase64 string      `json:"audio_base64"`
	Final       bool        `json:"final"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientMessage:
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_message")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || !validAction(msg.Action) {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validAction(action string) bool {
	switch action {
	case ActionClear, ActionStarter, ActionStopAudio, ActionAudioOn, ActionAudioOff:
		return true
	default:
		return false
	}
}
