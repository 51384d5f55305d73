package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier-pulse/pkg/model"
)

const (
	maxNotifications = 500
	maxAudit         = 200
)

// MemoryStore is a simple in-memory implementation, intended for dev/demo.
type MemoryStore struct {
	mu            sync.RWMutex
	orders        map[string]model.OrderSummary
	notifications []model.NotificationSummary
	audit         []model.AuditEntry
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]model.OrderSummary),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp records.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// UpsertOrder stores o, assigning an ID when empty and stamping UpdatedAt.
// CreatedAt is preserved across updates.
func (m *MemoryStore) UpsertOrder(o model.OrderSummary) (model.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if existing, ok := m.orders[o.ID]; ok {
		o.CreatedAt = existing.CreatedAt
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	m.orders[o.ID] = o
	return o, nil
}

func (m *MemoryStore) GetOrder(id string) (model.OrderSummary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) ListOrders() ([]model.OrderSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.OrderSummary, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sortOrders(out)
	return out, nil
}

func (m *MemoryStore) ListOrdersSince(t time.Time) ([]model.OrderSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.OrderSummary{}
	for _, o := range m.orders {
		if o.UpdatedAt.After(t) {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (m *MemoryStore) AppendNotification(n model.NotificationSummary) (model.NotificationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = m.now().UTC()
	list := append(m.notifications, n)
	if len(list) > maxNotifications {
		list = list[len(list)-maxNotifications:]
	}
	m.notifications = list
	return n, nil
}

func (m *MemoryStore) ListNotificationsSince(t time.Time) ([]model.NotificationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.NotificationSummary{}
	for _, n := range m.notifications {
		if n.CreatedAt.After(t) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendAudit(entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.audit, entry)
	if len(list) > maxAudit {
		list = list[len(list)-maxAudit:]
	}
	m.audit = list
	return nil
}

func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]model.AuditEntry, 0, limit)
	start := len(m.audit) - limit
	for i := start; i < len(m.audit); i++ {
		out = append(out, m.audit[i])
	}
	return out, nil
}

// Ping reports readiness for health/info endpoints.
func (m *MemoryStore) Ping() error { return nil }

func sortOrders(list []model.OrderSummary) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UpdatedAt.Before(list[j].UpdatedAt)
	})
}
