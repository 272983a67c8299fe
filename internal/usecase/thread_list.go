package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketlink/internal/domain/entity"
	"marketlink/internal/domain/repository"
	"marketlink/internal/infrastructure/channel"
	"marketlink/pkg/logger"
)

// ThreadList maintains the authoritative, de-duplicated, freshest-first view
// of all conversation threads for the current user, plus the global unread
// total. It is the exclusive owner of both: an open Session publishes its
// updates back here rather than keeping a second source of truth.
//
// All mutation is serialized behind one mutex; accessors return copies, never
// pointers into live state.
type ThreadList struct {
	backend    repository.Backend
	newChannel ChannelFactory

	mu          sync.Mutex
	threads     []*entity.Thread
	unreadTotal int
	status      channel.Status
	ch          Channel

	// onUnknownThread fires when a new_message event references a thread not
	// present locally. The event itself is dropped; callers typically trigger
	// RefreshThreads here.
	onUnknownThread func(threadID string)
}

func NewThreadList(backend repository.Backend, newChannel ChannelFactory) *ThreadList {
	return &ThreadList{
		backend:    backend,
		newChannel: newChannel,
		status:     channel.StatusDisconnected,
	}
}

// SetOnUnknownThread registers the unknown-thread hook. Must be called before
// Start.
func (tl *ThreadList) SetOnUnknownThread(fn func(threadID string)) {
	tl.onUnknownThread = fn
}

// Start opens the list-scope push channel. The backend snapshot is refreshed
// separately via RefreshThreads; neither depends on the other.
func (tl *ThreadList) Start() {
	tl.mu.Lock()
	if tl.ch != nil {
		tl.mu.Unlock()
		return
	}
	ch := tl.newChannel("", tl.HandleEvent, tl.handleStatus)
	tl.ch = ch
	tl.mu.Unlock()

	ch.Connect()
}

// Stop disconnects the channel and discards all in-memory state.
func (tl *ThreadList) Stop() {
	tl.mu.Lock()
	ch := tl.ch
	tl.ch = nil
	tl.threads = nil
	tl.unreadTotal = 0
	tl.status = channel.StatusDisconnected
	tl.mu.Unlock()

	if ch != nil {
		ch.Disconnect()
	}
}

// RefreshThreads fetches the full snapshot and replaces the collection
// wholesale. Safe to call at any time; concurrent calls are last-write-wins
// and readers never observe a partial collection.
func (tl *ThreadList) RefreshThreads(ctx context.Context) error {
	threads, err := tl.backend.ListThreads(ctx)
	if err != nil {
		return err
	}

	tl.mu.Lock()
	tl.threads = threads
	tl.sortLocked()
	tl.mu.Unlock()
	return nil
}

// RefreshUnreadCount fetches the authoritative unread total. Independent of
// the thread snapshot; the push channel keeps the two eventually consistent.
func (tl *ThreadList) RefreshUnreadCount(ctx context.Context) error {
	total, err := tl.backend.UnreadTotal(ctx)
	if err != nil {
		return err
	}

	tl.mu.Lock()
	tl.unreadTotal = total
	tl.mu.Unlock()
	return nil
}

// HandleEvent applies one list-scope push event. Events are applied
// idempotently; an authoritative unread_count reset always beats incremental
// updates.
func (tl *ThreadList) HandleEvent(ev entity.Event) {
	switch ev.Type {
	case entity.EventUnreadCount:
		tl.mu.Lock()
		tl.unreadTotal = ev.UnreadCount
		tl.mu.Unlock()

	case entity.EventNewMessage:
		tl.applyNewMessage(ev.ThreadID, ev.Message)

	case entity.EventThreadUpdated:
		tl.upsertThread(ev.Thread)

	default:
		logger.Debug("thread list: ignoring event type %q", ev.Type)
	}
}

func (tl *ThreadList) applyNewMessage(threadID string, msg *entity.Message) {
	tl.mu.Lock()
	t := tl.findLocked(threadID)
	if t == nil {
		tl.mu.Unlock()
		logger.Warn("thread list: new_message for unknown thread %s, dropping", threadID)
		if tl.onUnknownThread != nil {
			tl.onUnknownThread(threadID)
		}
		return
	}

	tl.applySummaryLocked(t, msg)
	t.UnreadCount++
	tl.unreadTotal++
	tl.sortLocked()
	tl.mu.Unlock()
}

// ApplyMessage reflects a message seen on a thread-scope channel into the
// list view, so the thread list shows the latest activity while the
// conversation is open. Does not touch unread counts: the list-scope
// new_message event and the session's read reconciliation own those.
func (tl *ThreadList) ApplyMessage(threadID string, msg *entity.Message) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	t := tl.findLocked(threadID)
	if t == nil {
		return
	}
	tl.applySummaryLocked(t, msg)
	tl.sortLocked()
}

// applySummaryLocked updates a thread's denormalized last-message fields.
// last_message_at never moves backwards.
func (tl *ThreadList) applySummaryLocked(t *entity.Thread, msg *entity.Message) {
	if t.LastMessage != nil && t.LastMessage.ID == msg.ID {
		return
	}
	if msg.CreatedAt.Before(t.LastMessageAt) {
		return
	}
	t.LastMessage = &entity.MessageSummary{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	t.LastMessageAt = msg.CreatedAt
}

func (tl *ThreadList) upsertThread(incoming *entity.Thread) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	// The global unread total is deliberately untouched here: it is only
	// moved by unread_count resets, new_message increments and read
	// reconciliation, never derived a second way from thread payloads.
	for i, t := range tl.threads {
		if t.ID == incoming.ID {
			tl.threads[i] = incoming.Clone()
			tl.sortLocked()
			return
		}
	}

	tl.threads = append([]*entity.Thread{incoming.Clone()}, tl.threads...)
	tl.sortLocked()
}

// MarkThreadAsRead zeroes a thread's unread count locally, ahead of any
// server acknowledgement. Not rolled back on a lost acknowledgement; the next
// unread_count push is the authoritative correction.
func (tl *ThreadList) MarkThreadAsRead(threadID string) {
	tl.reconcileRead(threadID)
}

// ReconcileRead is the read-acknowledgement path into the same chokepoint,
// invoked by a Session on a read_ack push event.
func (tl *ThreadList) ReconcileRead(threadID string) {
	tl.reconcileRead(threadID)
}

// Threads returns a snapshot of the collection, freshest-first.
func (tl *ThreadList) Threads() []*entity.Thread {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	out := make([]*entity.Thread, len(tl.threads))
	for i, t := range tl.threads {
		out[i] = t.Clone()
	}
	return out
}

// Thread returns one thread by ID, or nil when unknown.
func (tl *ThreadList) Thread(threadID string) *entity.Thread {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if t := tl.findLocked(threadID); t != nil {
		return t.Clone()
	}
	return nil
}

// UnreadTotal returns the global unread counter.
func (tl *ThreadList) UnreadTotal() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.unreadTotal
}

// Status returns the list-scope channel status.
func (tl *ThreadList) Status() channel.Status {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.status
}

func (tl *ThreadList) handleStatus(s channel.Status) {
	tl.mu.Lock()
	tl.status = s
	tl.mu.Unlock()
}

func (tl *ThreadList) findLocked(threadID string) *entity.Thread {
	for _, t := range tl.threads {
		if t.ID == threadID {
			return t
		}
	}
	return nil
}

// sortLocked keeps the collection freshest-first. Threads without any message
// fall back to their creation time.
func (tl *ThreadList) sortLocked() {
	sort.SliceStable(tl.threads, func(i, j int) bool {
		return tl.activity(tl.threads[i]).After(tl.activity(tl.threads[j]))
	})
}

func (tl *ThreadList) activity(t *entity.Thread) time.Time {
	if !t.LastMessageAt.IsZero() {
		return t.LastMessageAt
	}
	return t.CreatedAt
}
