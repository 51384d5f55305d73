package model

import "time"

// NotificationSummary is a user-facing notice tied (optionally) to an order.
type NotificationSummary struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id,omitempty"`
	Recipient string    `json:"recipient,omitempty"` // user id; empty means broadcast
	Kind      string    `json:"kind"`                // order_status/system/promo
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
