package poller

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"courier-pulse/pkg/model"
)

// wireBatch mirrors the endpoint body with pointer fields so that a missing
// key can be told apart from an empty value.
type wireBatch struct {
	Orders        *[]model.OrderSummary        `json:"orders"`
	Notifications *[]model.NotificationSummary `json:"notifications"`
	Timestamp     *string                      `json:"timestamp"`
	HasUpdates    *bool                        `json:"has_updates"`
}

func decodeBatch(r io.Reader) (model.UpdateBatch, error) {
	var w wireBatch
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return model.UpdateBatch{}, fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}
	var missing []string
	if w.Orders == nil {
		missing = append(missing, "orders")
	}
	if w.Notifications == nil {
		missing = append(missing, "notifications")
	}
	if w.Timestamp == nil || *w.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if w.HasUpdates == nil {
		missing = append(missing, "has_updates")
	}
	if len(missing) > 0 {
		return model.UpdateBatch{}, fmt.Errorf("%w: missing %v", ErrMalformedResponse, missing)
	}
	if _, err := ParseCursor(*w.Timestamp); err != nil {
		return model.UpdateBatch{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedResponse, *w.Timestamp, err)
	}
	return model.UpdateBatch{
		Orders:        *w.Orders,
		Notifications: *w.Notifications,
		Timestamp:     *w.Timestamp,
		HasUpdates:    *w.HasUpdates,
	}, nil
}

// ParseCursor parses an ISO-8601 cursor (RFC 3339, fractional seconds allowed).
func ParseCursor(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FormatCursor renders t the way the orders backend does.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
