package store

import (
	"errors"
	"time"

	"courier-pulse/pkg/model"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("not found")

// OrderStore defines the persistence layer behind the orders API.
// "Since" queries are strictly-after: an item stamped exactly at the cursor
// was already delivered by the poll that returned that cursor.
type OrderStore interface {
	UpsertOrder(model.OrderSummary) (model.OrderSummary, error)
	GetOrder(id string) (model.OrderSummary, bool, error)
	ListOrders() ([]model.OrderSummary, error)
	ListOrdersSince(t time.Time) ([]model.OrderSummary, error)
	AppendNotification(model.NotificationSummary) (model.NotificationSummary, error)
	ListNotificationsSince(t time.Time) ([]model.NotificationSummary, error)
	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
	Ping() error
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() OrderStore {
	return NewMemoryStore()
}
