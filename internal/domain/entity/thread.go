package entity

import "time"

// MessageSummary is the denormalized last-message view carried on a thread.
type MessageSummary struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is one buyer/supplier conversation, optionally scoped to a product.
// Identity is opaque to the client and immutable once created; the backend
// guarantees uniqueness per (participant pair, product).
type Thread struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id"`
	SupplierID    string          `json:"supplier_id"`
	ProductID     string          `json:"product_id,omitempty"`
	LastMessage   *MessageSummary `json:"last_message,omitempty"`
	LastMessageAt time.Time       `json:"last_message_at"`
	UnreadCount   int             `json:"unread_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers never hold pointers into live
// synchronizer state.
func (t *Thread) Clone() *Thread {
	c := *t
	if t.LastMessage != nil {
		lm := *t.LastMessage
		c.LastMessage = &lm
	}
	return &c
}
