package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUnreadCountEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"unread_count","data":{"count":7}}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnreadCount, ev.Type)
	assert.Equal(t, 7, ev.UnreadCount)
}

func TestDecodeNewMessageEvent(t *testing.T) {
	frame := []byte(`{"type":"new_message","data":{"thread_id":"t1","message":{"id":"m1","thread_id":"t1","sender_id":"u2","content":"hi","created_at":"2026-08-01T10:00:00Z"}}}`)
	ev, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, EventNewMessage, ev.Type)
	assert.Equal(t, "t1", ev.ThreadID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.Equal(t, "hi", ev.Message.Content)
}

func TestDecodeThreadUpdatedEvent(t *testing.T) {
	frame := []byte(`{"type":"thread_updated","data":{"id":"t1","buyer_id":"b1","supplier_id":"s1","unread_count":2,"last_message_at":"2026-08-01T10:00:00Z","created_at":"2026-07-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"}}`)
	ev, err := DecodeEvent(frame)
	require.NoError(t, err)
	require.NotNil(t, ev.Thread)
	assert.Equal(t, "t1", ev.Thread.ID)
	assert.Equal(t, 2, ev.Thread.UnreadCount)
}

func TestDecodeReadAckEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"read_ack","thread_id":"t1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventReadAck, ev.Type)
	assert.Equal(t, "t1", ev.ThreadID)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":            `{nope`,
		"unknown type":        `{"type":"presence","data":{}}`,
		"missing type":        `{"data":{}}`,
		"bad payload":         `{"type":"unread_count","data":"seven"}`,
		"new_message no id":   `{"type":"new_message","data":{"message":{"id":"m1"}}}`,
		"message empty ident": `{"type":"message","data":{"thread_id":"t1"}}`,
		"thread no id":        `{"type":"thread_updated","data":{}}`,
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(frame))
			assert.Error(t, err)
		})
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	msg := &Message{ID: "m1", ThreadID: "t1", SenderID: "u1", Content: "hello", CreatedAt: at}

	frame, err := EncodeEvent(Event{Type: EventMessage, Message: msg})
	require.NoError(t, err)

	ev, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, "t1", ev.ThreadID)
	assert.Equal(t, "hello", ev.Message.Content)
	assert.True(t, ev.Message.CreatedAt.Equal(at))
}

func TestSendFrameRoundTrip(t *testing.T) {
	frame, err := EncodeSend("is this in stock?")
	require.NoError(t, err)

	content, err := DecodeSend(frame)
	require.NoError(t, err)
	assert.Equal(t, "is this in stock?", content)

	// A send frame is not a valid inbound event.
	_, err = DecodeEvent(frame)
	assert.Error(t, err)
}

func TestThreadClone(t *testing.T) {
	orig := &Thread{
		ID:          "t1",
		UnreadCount: 3,
		LastMessage: &MessageSummary{ID: "m1", Content: "x"},
	}

	c := orig.Clone()
	c.UnreadCount = 9
	c.LastMessage.Content = "y"

	assert.Equal(t, 3, orig.UnreadCount)
	assert.Equal(t, "x", orig.LastMessage.Content)
}
