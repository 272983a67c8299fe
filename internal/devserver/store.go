package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketlink/internal/domain/entity"
	"marketlink/pkg/errors"
)

// Store is the devserver's in-memory backing state: threads, their messages,
// and per-user unread counters. It stands in for the production backend's
// persistence so the sync engine has a faithful contract to run against.
type Store struct {
	mu       sync.Mutex
	threads  map[string]*entity.Thread
	messages map[string][]*entity.Message
	unread   map[string]map[string]int // threadID -> userID -> count
}

func NewStore() *Store {
	return &Store{
		threads:  make(map[string]*entity.Thread),
		messages: make(map[string][]*entity.Message),
		unread:   make(map[string]map[string]int),
	}
}

// CreateThread registers a new conversation between a buyer and a supplier.
func (s *Store) CreateThread(buyerID, supplierID, productID string) *entity.Thread {
	now := time.Now().UTC()
	t := &entity.Thread{
		ID:         uuid.New().String(),
		BuyerID:    buyerID,
		SupplierID: supplierID,
		ProductID:  productID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.threads[t.ID] = t
	s.unread[t.ID] = make(map[string]int)
	s.mu.Unlock()
	return t
}

// ThreadsFor returns all threads the user participates in, freshest-first,
// rendered with that user's unread count.
func (s *Store) ThreadsFor(userID string) []*entity.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Thread
	for _, t := range s.threads {
		if t.BuyerID != userID && t.SupplierID != userID {
			continue
		}
		out = append(out, s.renderLocked(t, userID))
	}

	sort.Slice(out, func(i, j int) bool {
		return activityOf(out[i]).After(activityOf(out[j]))
	})
	return out
}

// ThreadFor returns one thread rendered for the user, or a NOT_FOUND error.
func (s *Store) ThreadFor(userID, threadID string) (*entity.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || (t.BuyerID != userID && t.SupplierID != userID) {
		return nil, errors.NotFound("thread", nil)
	}
	return s.renderLocked(t, userID), nil
}

// UnreadTotalFor sums the user's unread counts across all threads.
func (s *Store) UnreadTotalFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for threadID, byUser := range s.unread {
		t := s.threads[threadID]
		if t == nil || (t.BuyerID != userID && t.SupplierID != userID) {
			continue
		}
		total += byUser[userID]
	}
	return total
}

// MessagesFor returns one backward page of a thread's history, oldest-first
// within the page, plus whether more pages remain. Page 1 is the most recent
// messages.
func (s *Store) MessagesFor(userID, threadID string, page, pageSize int) ([]*entity.Message, bool, error) {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || (t.BuyerID != userID && t.SupplierID != userID) {
		return nil, false, errors.NotFound("thread", nil)
	}

	all := s.messages[threadID] // stored oldest-first
	end := len(all) - (page-1)*pageSize
	if end <= 0 {
		return []*entity.Message{}, false, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	out := make([]*entity.Message, end-start)
	copy(out, all[start:end])
	return out, start > 0, nil
}

// AppendMessage stores a new message from the sender, bumps the recipient's
// unread counter and the thread's last-message summary, and returns the
// stored message plus the recipient user ID.
func (s *Store) AppendMessage(senderID, threadID, content string) (*entity.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || (t.BuyerID != senderID && t.SupplierID != senderID) {
		return nil, "", errors.NotFound("thread", nil)
	}

	msg := &entity.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[threadID] = append(s.messages[threadID], msg)

	t.LastMessage = &entity.MessageSummary{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	t.LastMessageAt = msg.CreatedAt
	t.UpdatedAt = msg.CreatedAt

	recipient := t.BuyerID
	if senderID == t.BuyerID {
		recipient = t.SupplierID
	}
	s.unread[threadID][recipient]++

	return msg, recipient, nil
}

// MarkRead zeroes the user's unread counter for the thread.
func (s *Store) MarkRead(userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || (t.BuyerID != userID && t.SupplierID != userID) {
		return errors.NotFound("thread", nil)
	}
	s.unread[threadID][userID] = 0
	return nil
}

// IsParticipant reports whether the user belongs to the thread.
func (s *Store) IsParticipant(userID, threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	return ok && (t.BuyerID == userID || t.SupplierID == userID)
}

func (s *Store) renderLocked(t *entity.Thread, userID string) *entity.Thread {
	view := t.Clone()
	view.UnreadCount = s.unread[t.ID][userID]
	return view
}

func activityOf(t *entity.Thread) time.Time {
	if !t.LastMessageAt.IsZero() {
		return t.LastMessageAt
	}
	return t.CreatedAt
}
