package protocol

import (
	"errors"
	"testing"
)

func TestDecodeNewMessageAcceptsNumericID(t *testing.T) {
	frame := []byte(`{"event":"new_message","data":{"id":7,"username":"A","message":"hi","timestamp":"10:00 AM","type":"text"}}`)
	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	received, ok := ev.(MessageReceived)
	if !ok {
		t.Fatalf("expected MessageReceived, got %T", ev)
	}
	if received.Message.ID != "7" {
		t.Fatalf("expected id 7, got %q", received.Message.ID)
	}
	if received.Message.Body() != "hi" {
		t.Fatalf("unexpected body %q", received.Message.Body())
	}
}

func TestDecodeHistoryKeepsOrder(t *testing.T) {
	frame := []byte(`{"event":"message_history","data":[{"id":"a","username":"x","message":"one","type":"text"},{"id":"b","username":"y","message":"two","type":"text"}]}`)
	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	history := ev.(HistoryReceived)
	if len(history.Messages) != 2 || history.Messages[0].ID != "a" || history.Messages[1].ID != "b" {
		t.Fatalf("unexpected history: %+v", history.Messages)
	}
}

func TestDecodePresenceEvents(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"user_left","data":{"username":"Bob","timestamp":"10:01"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	left, ok := ev.(UserLeft)
	if !ok || left.Username != "Bob" {
		t.Fatalf("unexpected event %#v", ev)
	}

	ev, err = Decode([]byte(`{"event":"update_users","data":[{"username":"B","joined_at":"10:00"},{"username":"A","joined_at":"09:59"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if roster := ev.(RosterReceived); len(roster.Users) != 2 {
		t.Fatalf("unexpected roster: %+v", roster.Users)
	}
}

func TestDecodeJoinSuccessWithoutPayload(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"join_success"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := ev.(JoinSucceeded); !ok {
		t.Fatalf("expected JoinSucceeded, got %T", ev)
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"connection_response","data":{}}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("expected error for missing event name")
	}
}

func TestEncodeProducesDecodableEnvelope(t *testing.T) {
	frame, err := Encode(EventSendMessage, SendMessage{Message: "hello", Type: TypeText})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := DecodeEnvelope(frame)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	var payload SendMessage
	if err := env.Decode(&payload); err != nil {
		t.Fatalf("Decode payload: %v", err)
	}
	if env.Event != EventSendMessage || payload.Message != "hello" {
		t.Fatalf("unexpected round trip: %s %+v", env.Event, payload)
	}
}

func TestPhotoBodyPrefersPhotoURL(t *testing.T) {
	msg := ChatMessage{Type: TypePhoto, Message: "ignored", PhotoURL: "http://x/p.png"}
	if msg.Body() != "http://x/p.png" {
		t.Fatalf("expected photo url body, got %q", msg.Body())
	}
}
