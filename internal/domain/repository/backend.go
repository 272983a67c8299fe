package repository

import (
	"context"

	"marketlink/internal/domain/entity"
)

// Backend is the REST surface of the marketplace chat backend as consumed by
// the sync engine. All calls require the auth capability supplied at client
// construction; failures come back as *errors.AppError.
type Backend interface {
	// ListThreads returns the full thread snapshot for the current user,
	// freshest-first with denormalized last-message and unread fields.
	ListThreads(ctx context.Context) ([]*entity.Thread, error)

	// UnreadTotal returns the authoritative global unread counter.
	UnreadTotal(ctx context.Context) (int, error)

	// ListMessages returns one backward page of a thread's history, ordered
	// oldest-first within the page, plus a flag for more pages beyond it.
	ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, bool, error)

	// SendMessage is the REST fallback send; the returned message carries the
	// server-assigned identity and timestamp.
	SendMessage(ctx context.Context, threadID, content string) (*entity.Message, error)

	// MarkThreadRead acknowledges a thread as read. Best-effort from the
	// engine's point of view.
	MarkThreadRead(ctx context.Context, threadID string) error
}
