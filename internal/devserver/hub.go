package devserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"marketlink/internal/domain/entity"
	"marketlink/internal/infrastructure/ratelimit"
	"marketlink/pkg/logger"
)

// Client is one websocket subscriber: either a user's list-scope connection
// (ThreadID empty) or a thread-scope connection.
type Client struct {
	UserID   string
	ThreadID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub tracks the active push-channel subscribers and fans events out to them.
// List-scope connections receive new_message, thread_updated and unread_count
// events; thread-scope connections receive message and read_ack events and
// accept send_message frames inbound.
type Hub struct {
	store   *Store
	limiter *ratelimit.RateLimiter

	mu      sync.RWMutex
	list    map[string]map[*Client]struct{} // userID -> clients
	threads map[string]map[*Client]struct{} // threadID -> clients
}

func NewHub(store *Store, limiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		store:   store,
		limiter: limiter,
		list:    make(map[string]map[*Client]struct{}),
		threads: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and starts its pumps.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if client.ThreadID == "" {
		if h.list[client.UserID] == nil {
			h.list[client.UserID] = make(map[*Client]struct{})
		}
		h.list[client.UserID][client] = struct{}{}
	} else {
		if h.threads[client.ThreadID] == nil {
			h.threads[client.ThreadID] = make(map[*Client]struct{})
		}
		h.threads[client.ThreadID][client] = struct{}{}
	}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump(h)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if client.ThreadID == "" {
		if clients := h.list[client.UserID]; clients != nil {
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.Send)
			}
		}
	} else {
		if clients := h.threads[client.ThreadID]; clients != nil {
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.Send)
			}
		}
	}
	h.mu.Unlock()
}

// Deliver fans out one stored message: the thread-scope subscribers get the
// message itself, the recipient's list scope gets new_message plus the fresh
// unread total, and the sender's list scope gets the updated thread so their
// list reflects the send.
func (h *Hub) Deliver(msg *entity.Message, senderID, recipientID string) {
	h.toThread(msg.ThreadID, entity.Event{Type: entity.EventMessage, Message: msg})

	h.toUser(recipientID, entity.Event{
		Type:     entity.EventNewMessage,
		ThreadID: msg.ThreadID,
		Message:  msg,
	})
	h.toUser(recipientID, entity.Event{
		Type:        entity.EventUnreadCount,
		UnreadCount: h.store.UnreadTotalFor(recipientID),
	})

	if thread, err := h.store.ThreadFor(senderID, msg.ThreadID); err == nil {
		h.toUser(senderID, entity.Event{Type: entity.EventThreadUpdated, Thread: thread})
	}
}

// NotifyRead pushes the read acknowledgement back to the user's own
// connections: read_ack on the thread scope, the corrected unread total on
// the list scope.
func (h *Hub) NotifyRead(userID, threadID string) {
	h.toThreadUser(threadID, userID, entity.Event{Type: entity.EventReadAck, ThreadID: threadID})
	h.toUser(userID, entity.Event{
		Type:        entity.EventUnreadCount,
		UnreadCount: h.store.UnreadTotalFor(userID),
	})
}

func (h *Hub) toUser(userID string, ev entity.Event) {
	frame, err := entity.EncodeEvent(ev)
	if err != nil {
		logger.Error("hub: failed to encode %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.list[userID] {
		client.send(frame)
	}
}

func (h *Hub) toThread(threadID string, ev entity.Event) {
	frame, err := entity.EncodeEvent(ev)
	if err != nil {
		logger.Error("hub: failed to encode %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.threads[threadID] {
		client.send(frame)
	}
}

func (h *Hub) toThreadUser(threadID, userID string, ev entity.Event) {
	frame, err := entity.EncodeEvent(ev)
	if err != nil {
		logger.Error("hub: failed to encode %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.threads[threadID] {
		if client.UserID == userID {
			client.send(frame)
		}
	}
}

func (c *Client) send(frame []byte) {
	select {
	case c.Send <- frame:
	default:
		// Slow consumer; drop the frame rather than block the hub.
	}
}

// readPump consumes inbound frames. Thread-scope clients may send
// send_message frames; everything else is dropped.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.Conn.Close()
	}()

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("hub: read error for user %s: %v", c.UserID, err)
			}
			return
		}

		if c.ThreadID == "" {
			continue
		}

		content, err := entity.DecodeSend(frame)
		if err != nil {
			logger.Warn("hub: dropping frame from user %s: %v", c.UserID, err)
			continue
		}

		if allowed, _ := h.limiter.Allow(c.UserID, "send_message"); !allowed {
			logger.Warn("hub: user %s rate limited on thread %s", c.UserID, c.ThreadID)
			continue
		}

		msg, recipient, err := h.store.AppendMessage(c.UserID, c.ThreadID, content)
		if err != nil {
			logger.Warn("hub: send from user %s to thread %s rejected: %v", c.UserID, c.ThreadID, err)
			continue
		}
		h.Deliver(msg, c.UserID, recipient)
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for frame := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Debug("hub: write error for user %s: %v", c.UserID, err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
