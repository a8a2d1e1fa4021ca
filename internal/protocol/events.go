package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// event names exchanged over the websocket channel
const (
	EventJoin           = "join"
	EventJoinSuccess    = "join_success"
	EventJoinError      = "join_error"
	EventSendMessage    = "send_message"
	EventNewMessage     = "new_message"
	EventMessageHistory = "message_history"
	EventTyping         = "typing"
	EventUserTyping     = "user_typing"
	EventUpdateUsers    = "update_users"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventServerError    = "server_error"
)

// message types carried in send_message / new_message
const (
	TypeText   = "text"
	TypePhoto  = "photo"
	TypeGIF    = "gif"
	TypeSystem = "system"
)

// Envelope is the frame written on the wire for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

type JoinRequest struct {
	Username string `json:"username"`
}

type JoinError struct {
	Error string `json:"error"`
}

type SendMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type UserTyping struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type User struct {
	Username string `json:"username"`
	JoinedAt string `json:"joined_at"`
}

type Presence struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type ServerError struct {
	Error string `json:"error"`
}

// MessageID accepts both string and numeric identifiers from the server.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(data)
	return nil
}

// ChatMessage is the new_message payload and the element type of message_history.
type ChatMessage struct {
	ID        MessageID `json:"id,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	PhotoURL  string    `json:"photo_url,omitempty"`
}

// Body returns the text or image reference the message carries.
func (m ChatMessage) Body() string {
	if (m.Type == TypePhoto || m.Type == TypeGIF) && m.PhotoURL != "" {
		return m.PhotoURL
	}
	return m.Message
}

// Event is an inbound occurrence on the channel. The concrete types below form a
// closed set; the chat client switches on them in a single dispatch function.
type Event interface {
	isEvent()
}

type (
	// ChannelUp is produced by the transport once the connection is established.
	ChannelUp struct{}
	// ChannelDown is produced by the transport when a dial fails or an open connection drops.
	ChannelDown     struct{ Err error }
	JoinSucceeded   struct{}
	JoinFailed      struct{ Reason string }
	MessageReceived struct{ Message ChatMessage }
	HistoryReceived struct{ Messages []ChatMessage }
	TypingChanged   struct {
		Username string
		IsTyping bool
	}
	RosterReceived struct{ Users []User }
	UserJoined     struct{ Presence }
	UserLeft       struct{ Presence }
	ServerFailed   struct{ Reason string }
)

func (ChannelUp) isEvent()       {}
func (ChannelDown) isEvent()     {}
func (JoinSucceeded) isEvent()   {}
func (JoinFailed) isEvent()      {}
func (MessageReceived) isEvent() {}
func (HistoryReceived) isEvent() {}
func (TypingChanged) isEvent()   {}
func (RosterReceived) isEvent()  {}
func (UserJoined) isEvent()      {}
func (UserLeft) isEvent()        {}
func (ServerFailed) isEvent()    {}

// ErrUnknownEvent is returned by Decode for event names the client does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Encode wraps payload in an envelope for the named event.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a raw frame without interpreting its payload.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("decode envelope: missing event name")
	}
	return env, nil
}

// Decode turns a server frame into one of the inbound Event types.
func Decode(frame []byte) (Event, error) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	switch env.Event {
	case EventJoinSuccess:
		return JoinSucceeded{}, nil
	case EventJoinError:
		var payload JoinError
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return JoinFailed{Reason: payload.Error}, nil
	case EventNewMessage:
		var payload ChatMessage
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return MessageReceived{Message: payload}, nil
	case EventMessageHistory:
		var payload []ChatMessage
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return HistoryReceived{Messages: payload}, nil
	case EventUserTyping:
		var payload UserTyping
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return TypingChanged{Username: payload.Username, IsTyping: payload.IsTyping}, nil
	case EventUpdateUsers:
		var payload []User
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return RosterReceived{Users: payload}, nil
	case EventUserJoined, EventUserLeft:
		var payload Presence
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if env.Event == EventUserJoined {
			return UserJoined{Presence: payload}, nil
		}
		return UserLeft{Presence: payload}, nil
	case EventServerError:
		var payload ServerError
		if err := env.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return ServerFailed{Reason: payload.Error}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
}
