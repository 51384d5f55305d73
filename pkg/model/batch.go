package model

// UpdateBatch is the result of one poll of the real-time updates endpoint.
// Timestamp is the cursor the next poll should send as `since`.
type UpdateBatch struct {
	Orders        []OrderSummary        `json:"orders"`
	Notifications []NotificationSummary `json:"notifications"`
	Timestamp     string                `json:"timestamp"`
	HasUpdates    bool                  `json:"has_updates"`
}
