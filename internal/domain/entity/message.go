package entity

import "time"

// Message belongs to exactly one thread and is immutable once created.
// ID and CreatedAt are always server-assigned.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
