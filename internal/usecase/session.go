package usecase

import (
	"context"
	"strings"
	"sync"

	"marketlink/internal/domain/entity"
	"marketlink/internal/domain/repository"
	"marketlink/internal/infrastructure/channel"
	"marketlink/pkg/errors"
	"marketlink/pkg/logger"
)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionLoadingInitial
	sessionReady
)

// Session represents one open conversation: backward-paginated history plus a
// live tail over a thread-scoped push channel. Closing the session tears the
// channel down; no background channel stays open for a thread that is not
// visible.
type Session struct {
	threadID   string
	backend    repository.Backend
	newChannel ChannelFactory
	list       *ThreadList
	pageSize   int

	mu           sync.Mutex
	state        sessionState
	messages     []*entity.Message
	seen         map[string]struct{}
	page         int
	hasMore      bool
	loadingOlder bool
	status       channel.Status
	ch           Channel
	closed       bool
}

func NewSession(threadID string, backend repository.Backend, newChannel ChannelFactory, list *ThreadList, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Session{
		threadID:   threadID,
		backend:    backend,
		newChannel: newChannel,
		list:       list,
		pageSize:   pageSize,
		seen:       make(map[string]struct{}),
		status:     channel.StatusDisconnected,
	}
}

// Open loads page 1 of history and then begins connecting the thread-scoped
// channel. History loading does not depend on channel state. A failed initial
// load leaves the session idle and retryable.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Internal("session is closed", nil)
	}
	if s.state != sessionIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = sessionLoadingInitial
	s.mu.Unlock()

	msgs, hasMore, err := s.backend.ListMessages(ctx, s.threadID, 1, s.pageSize)
	if err != nil {
		s.mu.Lock()
		s.state = sessionIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Internal("session is closed", nil)
	}
	s.messages = s.messages[:0]
	s.seen = make(map[string]struct{})
	for _, m := range msgs {
		s.messages = append(s.messages, m)
		s.seen[m.ID] = struct{}{}
	}
	s.page = 1
	s.hasMore = hasMore
	s.state = sessionReady

	ch := s.newChannel(s.threadID, s.HandleEvent, s.handleStatus)
	s.ch = ch
	s.mu.Unlock()

	ch.Connect()
	return nil
}

// Close disconnects the thread-scoped channel and discards session state.
// Events still in flight from the channel are ignored from this point on,
// even if the network close completes later. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = sessionIdle
	ch := s.ch
	s.ch = nil
	s.messages = nil
	s.seen = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Disconnect()
	}
}

// LoadMoreMessages fetches the next backward page and prepends it to the
// window. Overlapping calls for the same session are rejected as no-ops; a
// failed fetch leaves the existing window untouched.
func (s *Session) LoadMoreMessages(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.state != sessionReady {
		s.mu.Unlock()
		return nil
	}
	if !s.hasMore || s.loadingOlder {
		s.mu.Unlock()
		return nil
	}
	s.loadingOlder = true
	nextPage := s.page + 1
	s.mu.Unlock()

	msgs, hasMore, err := s.backend.ListMessages(ctx, s.threadID, nextPage, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingOlder = false
	if err != nil {
		return err
	}
	if s.closed {
		return nil
	}

	older := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := s.seen[m.ID]; dup {
			continue
		}
		older = append(older, m)
		s.seen[m.ID] = struct{}{}
	}
	s.messages = append(older, s.messages...)
	s.page = nextPage
	s.hasMore = hasMore
	return nil
}

// SendMessage sends the given text to the thread. While the channel is
// connected the send goes over it and the message is expected to come back as
// a live event carrying its server-assigned identity; otherwise the send
// falls back to one REST call and the returned message is appended directly.
// Exactly one of the two paths runs per call. On failure the caller's draft
// is untouched and the error is recoverable.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return errors.BadRequest("message text is empty", nil)
	}

	s.mu.Lock()
	if s.closed || s.state != sessionReady {
		s.mu.Unlock()
		return errors.Internal("session not ready", nil)
	}
	ch := s.ch
	s.mu.Unlock()

	if ch != nil && ch.Connected() {
		frame, err := entity.EncodeSend(content)
		if err != nil {
			return errors.Internal("failed to encode message", err)
		}
		if err := ch.Send(frame); err != nil {
			return errors.Unavailable("channel send failed", err)
		}
		return nil
	}

	msg, err := s.backend.SendMessage(ctx, s.threadID, content)
	if err != nil {
		return err
	}
	s.append(msg)
	return nil
}

// HandleEvent applies one thread-scope push event.
func (s *Session) HandleEvent(ev entity.Event) {
	switch ev.Type {
	case entity.EventMessage:
		s.append(ev.Message)

	case entity.EventReadAck:
		if s.list != nil {
			s.list.ReconcileRead(s.threadID)
		}

	default:
		logger.Debug("session %s: ignoring event type %q", s.threadID, ev.Type)
	}
}

// append adds a message to the tail of the window, deduplicated by identity.
// Duplicates arrive when a REST fallback send races the channel echoing the
// same message back.
func (s *Session) append(msg *entity.Message) {
	if msg == nil {
		return
	}

	s.mu.Lock()
	if s.closed || s.state != sessionReady {
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.seen[msg.ID] = struct{}{}
	s.mu.Unlock()

	if s.list != nil {
		s.list.ApplyMessage(s.threadID, msg)
	}
}

func (s *Session) handleStatus(st channel.Status) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = st
	s.mu.Unlock()

	// Mark-as-read fires exactly once per connection-established transition,
	// not once per message.
	if st == channel.StatusConnected && prev != channel.StatusConnected {
		s.markAsRead()
	}
}

// markAsRead zeroes the unread count locally and fires the best-effort server
// acknowledgement. A lost acknowledgement is not retried; the next
// unread_count push or manual refresh corrects it.
func (s *Session) markAsRead() {
	if s.list != nil {
		s.list.MarkThreadAsRead(s.threadID)
	}
	go func() {
		if err := s.backend.MarkThreadRead(context.Background(), s.threadID); err != nil {
			logger.Warn("session %s: read acknowledgement failed: %v", s.threadID, err)
		}
	}()
}

// Messages returns a copy of the loaded window, oldest-first.
func (s *Session) Messages() []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HasMore reports whether older history pages remain.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Status returns the thread-scoped channel status.
func (s *Session) Status() channel.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ThreadID returns the conversation this session is bound to.
func (s *Session) ThreadID() string {
	return s.threadID
}
