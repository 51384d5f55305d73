package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courier-pulse/pkg/auth"
	"courier-pulse/pkg/model"
	"courier-pulse/pkg/store"
	"courier-pulse/pkg/version"
)

// UpdatesPath must match the path the dashboard poller requests.
const UpdatesPath = "/api/orders/real_time_updates/"

// RegisterRoutes wires the orders API handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, st store.OrderStore, token, environment string) {
	authed := authFunc(token)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("courier-pulse orders api"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := model.HealthStatus{
			Status:      "healthy",
			Environment: environment,
			Version:     version.Build,
			Checks:      map[string]string{"store": "ok"},
		}
		code := http.StatusOK
		if err := st.Ping(); err != nil {
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	mux.HandleFunc(UpdatesPath, func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var since time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				http.Error(w, "invalid since timestamp", http.StatusBadRequest)
				return
			}
			since = t
		}
		// Stamp before reading: a write racing this request shows up again in
		// the next batch rather than being skipped.
		now := time.Now().UTC()
		orders, err := st.ListOrdersSince(since)
		if err != nil {
			http.Error(w, "failed to list orders", http.StatusInternalServerError)
			return
		}
		notes, err := st.ListNotificationsSince(since)
		if err != nil {
			http.Error(w, "failed to list notifications", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, model.UpdateBatch{
			Orders:        orders,
			Notifications: notes,
			Timestamp:     now.Format(time.RFC3339Nano),
			HasUpdates:    len(orders)+len(notes) > 0,
		})
	})

	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			orders, err := st.ListOrders()
			if err != nil {
				http.Error(w, "failed to list orders", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, ordersPage{Orders: orders, Count: len(orders)})
		case http.MethodPost:
			var req model.OrderSummary
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			saved, err := upsertOrder(st, req, actor(r))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var n model.NotificationSummary
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil || n.Title == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if n.Kind == "" {
			n.Kind = "system"
		}
		saved, err := st.AppendNotification(n)
		if err != nil {
			http.Error(w, "failed to save notification", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	})

	mux.HandleFunc("/api/audit/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 50
		}
		entries, err := st.ListAudit(limit)
		if err != nil {
			http.Error(w, "failed to list audit", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})
}

// upsertOrder saves an order and, when its status changed, emits an
// order_status notification for the customer.
func upsertOrder(st store.OrderStore, req model.OrderSummary, who string) (model.OrderSummary, error) {
	if req.ID == "" && req.TrackingNumber == "" {
		return model.OrderSummary{}, fmt.Errorf("id or tracking_number is required")
	}
	existing, found, err := model.OrderSummary{}, false, error(nil)
	if req.ID != "" {
		existing, found, err = st.GetOrder(req.ID)
		if err != nil {
			return model.OrderSummary{}, fmt.Errorf("lookup order: %w", err)
		}
	}
	if req.Status == "" {
		req.Status = model.OrderPending
		if found {
			req.Status = existing.Status
		}
	}
	if !model.ValidOrderStatus(req.Status) {
		return model.OrderSummary{}, fmt.Errorf("unknown status %q", req.Status)
	}
	saved, err := st.UpsertOrder(req)
	if err != nil {
		return model.OrderSummary{}, fmt.Errorf("save order: %w", err)
	}
	if !found || existing.Status != saved.Status {
		label := saved.TrackingNumber
		if label == "" {
			label = saved.ID
		}
		_, _ = st.AppendNotification(model.NotificationSummary{
			OrderID:   saved.ID,
			Recipient: saved.CustomerID,
			Kind:      "order_status",
			Title:     fmt.Sprintf("Order %s is %s", label, strings.ReplaceAll(saved.Status, "_", " ")),
		})
	}
	_ = st.AppendAudit(model.AuditEntry{
		Actor:     who,
		Action:    "order_upsert",
		Target:    saved.ID,
		Detail:    "status=" + saved.Status,
		Timestamp: time.Now(),
	})
	log.Printf("order upserted id=%s status=%s by=%s", saved.ID, saved.Status, who)
	return saved, nil
}

// actor names the caller for audit entries.
func actor(r *http.Request) string {
	if c, ok := bearerClaims(r); ok {
		return c.Username
	}
	return "api"
}

func bearerClaims(r *http.Request) (*auth.Claims, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, false
	}
	c, err := auth.Parse(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return nil, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// authFunc accepts the static token (X-Auth-Token or Bearer) or any valid JWT.
// With no static token configured every request is allowed.
func authFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		if h == token {
			return true
		}
		_, ok := bearerClaims(r)
		return ok
	}
}
