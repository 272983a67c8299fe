package usecase

// reconcileRead is the single chokepoint for every "thread was read"
// transition: opening a conversation, a read_ack push, or an explicit mark.
// Idempotent — reconciling an already-zero thread is a no-op — and it
// subtracts at most the thread's currently-known unread count, so the global
// total can never go negative through this path.
func (tl *ThreadList) reconcileRead(threadID string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	t := tl.findLocked(threadID)
	if t == nil || t.UnreadCount == 0 {
		return
	}

	tl.unreadTotal -= t.UnreadCount
	if tl.unreadTotal < 0 {
		tl.unreadTotal = 0
	}
	t.UnreadCount = 0
}
