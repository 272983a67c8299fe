package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Push channel event types. The list scope delivers unread_count, new_message
// and thread_updated; the thread scope delivers message and read_ack and
// accepts send_message outbound.
const (
	EventUnreadCount   = "unread_count"
	EventNewMessage    = "new_message"
	EventThreadUpdated = "thread_updated"
	EventMessage       = "message"
	EventReadAck       = "read_ack"
	EventSendMessage   = "send_message"
)

// Event is the decoded form of one push channel frame. Exactly one payload
// field is populated, matching Type.
type Event struct {
	Type string

	UnreadCount int      // EventUnreadCount
	ThreadID    string   // EventNewMessage, EventReadAck
	Message     *Message // EventNewMessage, EventMessage
	Thread      *Thread  // EventThreadUpdated
}

// wireEvent is the frame envelope: a type tag plus a raw payload.
type wireEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type unreadCountData struct {
	Count int `json:"count"`
}

type newMessageData struct {
	ThreadID string   `json:"thread_id"`
	Message  *Message `json:"message"`
}

type sendMessageData struct {
	Content string `json:"content"`
}

// DecodeEvent parses one inbound frame. Unknown types and malformed payloads
// return an error; the caller logs and drops the frame.
func DecodeEvent(frame []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(frame, &w); err != nil {
		return Event{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch w.Type {
	case EventUnreadCount:
		var d unreadCountData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
		}
		return Event{Type: w.Type, UnreadCount: d.Count}, nil

	case EventNewMessage:
		var d newMessageData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
		}
		if d.Message == nil || d.ThreadID == "" {
			return Event{}, fmt.Errorf("incomplete %s payload", w.Type)
		}
		return Event{Type: w.Type, ThreadID: d.ThreadID, Message: d.Message}, nil

	case EventThreadUpdated:
		var t Thread
		if err := json.Unmarshal(w.Data, &t); err != nil {
			return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
		}
		if t.ID == "" {
			return Event{}, fmt.Errorf("incomplete %s payload", w.Type)
		}
		return Event{Type: w.Type, Thread: &t}, nil

	case EventMessage:
		var m Message
		if err := json.Unmarshal(w.Data, &m); err != nil {
			return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
		}
		if m.ID == "" {
			return Event{}, fmt.Errorf("incomplete %s payload", w.Type)
		}
		return Event{Type: w.Type, ThreadID: m.ThreadID, Message: &m}, nil

	case EventReadAck:
		return Event{Type: w.Type, ThreadID: w.ThreadID}, nil

	default:
		return Event{}, fmt.Errorf("unknown event type %q", w.Type)
	}
}

// EncodeEvent builds an outbound frame for the given event. Used by the
// devserver hub; the engine only sends send_message frames.
func EncodeEvent(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Type, Timestamp: time.Now().UTC().Format(time.RFC3339)}

	var payload interface{}
	switch ev.Type {
	case EventUnreadCount:
		payload = unreadCountData{Count: ev.UnreadCount}
	case EventNewMessage:
		payload = newMessageData{ThreadID: ev.ThreadID, Message: ev.Message}
	case EventThreadUpdated:
		payload = ev.Thread
	case EventMessage:
		payload = ev.Message
	case EventReadAck:
		w.ThreadID = ev.ThreadID
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// EncodeSend builds the outbound send_message frame carrying the message text.
func EncodeSend(content string) ([]byte, error) {
	data, err := json.Marshal(sendMessageData{Content: content})
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Type:      EventSendMessage,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// DecodeSend parses an outbound send_message frame on the server side.
func DecodeSend(frame []byte) (string, error) {
	var w wireEvent
	if err := json.Unmarshal(frame, &w); err != nil {
		return "", fmt.Errorf("malformed frame: %w", err)
	}
	if w.Type != EventSendMessage {
		return "", fmt.Errorf("unexpected frame type %q", w.Type)
	}
	var d sendMessageData
	if err := json.Unmarshal(w.Data, &d); err != nil {
		return "", fmt.Errorf("malformed %s payload: %w", w.Type, err)
	}
	return d.Content, nil
}
