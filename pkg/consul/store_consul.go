//go:build consul

package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	consulapi "github.com/hashicorp/consul/api"

	"courier-pulse/pkg/model"
)

// Store is a Consul KV-backed OrderStore implementation.
type Store struct {
	cli *consulapi.Client
	now func() time.Time
}

const (
	orderPrefix        = "courier-pulse/orders/"
	notificationPrefix = "courier-pulse/notifications/"
	auditPrefix        = "courier-pulse/audit/"
	maxNotifications   = 500
)

func NewStore(addr string) *Store {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, _ := consulapi.NewClient(cfg) // ignore error for build; runtime will report
	return &Store{cli: cli, now: time.Now}
}

func (s *Store) put(key string, v interface{}) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil)
	return err
}

func (s *Store) UpsertOrder(o model.OrderSummary) (model.OrderSummary, error) {
	now := s.now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if existing, ok, err := s.GetOrder(o.ID); err != nil {
		return o, err
	} else if ok {
		o.CreatedAt = existing.CreatedAt
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if err := s.put(orderPrefix+o.ID, o); err != nil {
		return o, err
	}
	return o, nil
}

func (s *Store) GetOrder(id string) (model.OrderSummary, bool, error) {
	if s.cli == nil {
		return model.OrderSummary{}, false, fmt.Errorf("consul client not configured")
	}
	kv, _, err := s.cli.KV().Get(orderPrefix+id, nil)
	if err != nil || kv == nil {
		return model.OrderSummary{}, false, err
	}
	var o model.OrderSummary
	if err := json.Unmarshal(kv.Value, &o); err != nil {
		return model.OrderSummary{}, false, err
	}
	return o, true, nil
}

func (s *Store) ListOrders() ([]model.OrderSummary, error) {
	return s.ListOrdersSince(time.Time{})
}

func (s *Store) ListOrdersSince(t time.Time) ([]model.OrderSummary, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(orderPrefix, nil)
	if err != nil {
		return nil, err
	}
	out := []model.OrderSummary{}
	for _, p := range pairs {
		var o model.OrderSummary
		if err := json.Unmarshal(p.Value, &o); err == nil && o.UpdatedAt.After(t) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// notification keys sort by creation time.
func (s *Store) AppendNotification(n model.NotificationSummary) (model.NotificationSummary, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = s.now().UTC()
	key := fmt.Sprintf("%s%020d-%s", notificationPrefix, n.CreatedAt.UnixNano(), n.ID)
	if err := s.put(key, n); err != nil {
		return n, err
	}
	s.trimNotifications()
	return n, nil
}

func (s *Store) trimNotifications() {
	keys, _, err := s.cli.KV().Keys(notificationPrefix, "", nil)
	if err != nil || len(keys) <= maxNotifications {
		return
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-maxNotifications] {
		_, _ = s.cli.KV().Delete(k, nil)
	}
}

func (s *Store) ListNotificationsSince(t time.Time) ([]model.NotificationSummary, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(notificationPrefix, nil)
	if err != nil {
		return nil, err
	}
	out := []model.NotificationSummary{}
	for _, p := range pairs {
		var n model.NotificationSummary
		if err := json.Unmarshal(p.Value, &n); err == nil && n.CreatedAt.After(t) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) AppendAudit(entry model.AuditEntry) error {
	key := fmt.Sprintf("%s%020d", auditPrefix, entry.Timestamp.UnixNano())
	return s.put(key, entry)
}

func (s *Store) ListAudit(limit int) ([]model.AuditEntry, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(auditPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.AuditEntry
	for _, p := range pairs {
		var e model.AuditEntry
		if err := json.Unmarshal(p.Value, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Ping checks that the agent answers and has a leader.
func (s *Store) Ping() error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	leader, err := s.cli.Status().Leader()
	if err != nil {
		return err
	}
	if leader == "" {
		return fmt.Errorf("consul has no leader")
	}
	return nil
}

// StartWatch calls onChange whenever anything under the orders prefix changes
// (blocking queries on the KV index).
func (s *Store) StartWatch(ctx context.Context, onChange func()) {
	if s.cli == nil {
		return
	}
	go func() {
		q := (&consulapi.QueryOptions{}).WithContext(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, meta, err := s.cli.KV().List(orderPrefix, q)
			if err != nil {
				time.Sleep(time.Second)
				continue
			}
			if q.WaitIndex != 0 && meta.LastIndex != q.WaitIndex {
				onChange()
			}
			q.WaitIndex = meta.LastIndex
		}
	}()
}
