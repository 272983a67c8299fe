package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink/internal/domain/entity"
)

func TestReconcileReadIdempotent(t *testing.T) {
	list, backend, _ := newListRig()
	now := time.Now()
	backend.threads = []*entity.Thread{thread("t1", 3, now), thread("t2", 2, now)}
	backend.unreadTotal = 5
	require.NoError(t, list.RefreshThreads(context.Background()))
	require.NoError(t, list.RefreshUnreadCount(context.Background()))

	list.MarkThreadAsRead("t1")
	assert.Equal(t, 0, list.Thread("t1").UnreadCount)
	assert.Equal(t, 2, list.UnreadTotal())

	// Reconciling an already-zero thread is a no-op.
	list.MarkThreadAsRead("t1")
	list.ReconcileRead("t1")
	assert.Equal(t, 2, list.UnreadTotal())
}

func TestReconcileReadUnknownThread(t *testing.T) {
	list, backend, _ := newListRig()
	backend.unreadTotal = 4
	require.NoError(t, list.RefreshUnreadCount(context.Background()))

	list.MarkThreadAsRead("ghost")
	assert.Equal(t, 4, list.UnreadTotal())
}

func TestReconcileReadNeverNegative(t *testing.T) {
	// A thread's count can exceed the known total when the two were fetched
	// at different moments; reconciliation floors the total at zero.
	list, backend, _ := newListRig()
	now := time.Now()
	backend.threads = []*entity.Thread{thread("t1", 9, now)}
	backend.unreadTotal = 4
	require.NoError(t, list.RefreshThreads(context.Background()))
	require.NoError(t, list.RefreshUnreadCount(context.Background()))

	list.MarkThreadAsRead("t1")
	assert.Equal(t, 0, list.UnreadTotal())
	assert.Equal(t, 0, list.Thread("t1").UnreadCount)
}
