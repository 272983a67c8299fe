package usecase

import (
	"context"
	"sync"
	"time"

	"marketlink/internal/domain/entity"
	"marketlink/internal/infrastructure/channel"
	"marketlink/pkg/errors"
)

// fakeBackend implements repository.Backend with canned responses and call
// counters.
type fakeBackend struct {
	mu sync.Mutex

	threads     []*entity.Thread
	unreadTotal int
	pages       map[int][]*entity.Message // page number -> messages (oldest-first)
	lastPage    int

	sendResult *entity.Message
	sendErr    error
	listErr    error
	messageErr error
	markErr    error

	sendCalls int
	markCalls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{pages: make(map[int][]*entity.Message)}
}

func (f *fakeBackend) ListThreads(ctx context.Context) ([]*entity.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*entity.Thread, len(f.threads))
	for i, t := range f.threads {
		out[i] = t.Clone()
	}
	return out, nil
}

func (f *fakeBackend) UnreadTotal(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadTotal, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageErr != nil {
		return nil, false, f.messageErr
	}
	msgs := f.pages[page]
	return msgs, page < f.lastPage, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, threadID, content string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return &entity.Message{
		ID:        "rest-msg",
		ThreadID:  threadID,
		SenderID:  "me",
		Content:   content,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeBackend) MarkThreadRead(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, threadID)
	return f.markErr
}

func (f *fakeBackend) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markCalls)
}

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

// fakeChannel implements Channel without any network. Tests flip its
// connected state and capture outbound frames.
type fakeChannel struct {
	mu        sync.Mutex
	scope     string
	connected bool
	sent      [][]byte

	onEvent  func(entity.Event)
	onStatus func(channel.Status)

	connectCalls    int
	disconnectCalls int
}

func (f *fakeChannel) Connect() {
	f.mu.Lock()
	f.connectCalls++
	f.mu.Unlock()
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	f.disconnectCalls++
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Status() channel.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return channel.StatusConnected
	}
	return channel.StatusDisconnected
}

func (f *fakeChannel) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return channel.ErrNotConnected
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// markConnected flips the channel to connected and fires the status callback
// the way a real manager would.
func (f *fakeChannel) markConnected() {
	f.mu.Lock()
	f.connected = true
	cb := f.onStatus
	f.mu.Unlock()
	if cb != nil {
		cb(channel.StatusConnected)
	}
}

func (f *fakeChannel) markDisconnected() {
	f.mu.Lock()
	f.connected = false
	cb := f.onStatus
	f.mu.Unlock()
	if cb != nil {
		cb(channel.StatusDisconnected)
	}
}

// deliver pushes an event through the registered handler.
func (f *fakeChannel) deliver(ev entity.Event) {
	f.mu.Lock()
	cb := f.onEvent
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// channelRig builds a ChannelFactory that records every channel it creates.
type channelRig struct {
	mu       sync.Mutex
	channels []*fakeChannel
}

func (r *channelRig) factory(scope string, onEvent func(entity.Event), onStatus func(channel.Status)) Channel {
	ch := &fakeChannel{scope: scope, onEvent: onEvent, onStatus: onStatus}
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()
	return ch
}

func (r *channelRig) last() *fakeChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.channels) == 0 {
		return nil
	}
	return r.channels[len(r.channels)-1]
}

func thread(id string, unread int, lastAt time.Time) *entity.Thread {
	return &entity.Thread{
		ID:            id,
		BuyerID:       "buyer-1",
		SupplierID:    "supplier-1",
		UnreadCount:   unread,
		LastMessageAt: lastAt,
		CreatedAt:     lastAt.Add(-time.Hour),
	}
}

func message(id, threadID string, at time.Time) *entity.Message {
	return &entity.Message{
		ID:        id,
		ThreadID:  threadID,
		SenderID:  "supplier-1",
		Content:   "msg " + id,
		CreatedAt: at,
	}
}

var errBoom = errors.Unavailable("backend unreachable", nil)
