package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"courier-pulse/pkg/auth"
	"courier-pulse/pkg/model"
	"courier-pulse/pkg/store"
)

func newServer(t *testing.T, st store.OrderStore, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, st, token, "test")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, u, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestUpdatesInitialPollReturnsEverything(t *testing.T) {
	st := store.NewMemoryStore()
	if _, err := st.UpsertOrder(model.OrderSummary{ID: "o1", TrackingNumber: "TRK1", Status: model.OrderPending}); err != nil {
		t.Fatal(err)
	}
	srv := newServer(t, st, "")

	before := time.Now().UTC()
	resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var batch model.UpdateBatch
	decode(t, resp, &batch)
	if !batch.HasUpdates || len(batch.Orders) != 1 || batch.Orders[0].ID != "o1" {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Notifications == nil {
		t.Fatal("notifications should encode as an empty list")
	}
	ts, err := time.Parse(time.RFC3339Nano, batch.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q: %v", batch.Timestamp, err)
	}
	if ts.Before(before.Add(-time.Second)) {
		t.Fatalf("timestamp %v too old", ts)
	}
}

func TestUpdatesSinceCursorOnlyReturnsNewer(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return base })
	_, _ = st.UpsertOrder(model.OrderSummary{ID: "old", Status: model.OrderPending})
	st.SetClock(func() time.Time { return base.Add(time.Minute) })
	_, _ = st.UpsertOrder(model.OrderSummary{ID: "new", Status: model.OrderAssigned})
	srv := newServer(t, st, "")

	q := url.Values{"since": {base.Format(time.RFC3339Nano)}}
	resp := do(t, http.MethodGet, srv.URL+UpdatesPath+"?"+q.Encode(), "", nil)
	var batch model.UpdateBatch
	decode(t, resp, &batch)
	if len(batch.Orders) != 1 || batch.Orders[0].ID != "new" {
		t.Fatalf("orders = %+v", batch.Orders)
	}

	q = url.Values{"since": {base.Add(time.Hour).Format(time.RFC3339Nano)}}
	resp = do(t, http.MethodGet, srv.URL+UpdatesPath+"?"+q.Encode(), "", nil)
	batch = model.UpdateBatch{}
	decode(t, resp, &batch)
	if batch.HasUpdates || len(batch.Orders) != 0 || batch.Orders == nil {
		t.Fatalf("expected empty non-nil batch, got %+v", batch)
	}
}

func TestUpdatesRejectsBadSince(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore(), "")
	resp := do(t, http.MethodGet, srv.URL+UpdatesPath+"?since=yesterday", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStaticTokenAndJWT(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore(), "s3cret")
	if resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", map[string]string{"X-Auth-Token": "s3cret"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("header token: status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", map[string]string{"Authorization": "Bearer s3cret"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer token: status = %d", resp.StatusCode)
	}
	jwt, err := auth.Generate(7, "dispatch", model.RoleCourier, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", map[string]string{"Authorization": "Bearer " + jwt}); resp.StatusCode != http.StatusOK {
		t.Fatalf("jwt: status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+UpdatesPath, "", map[string]string{"Authorization": "Bearer nope"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad bearer: status = %d", resp.StatusCode)
	}
}

func TestUpsertOrderEmitsStatusNotification(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newServer(t, st, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/orders/", `{"id":"o1","tracking_number":"TRK1","customer_id":"c9"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}
	var saved model.OrderSummary
	decode(t, resp, &saved)
	if saved.Status != model.OrderPending {
		t.Fatalf("default status = %q", saved.Status)
	}

	// same status again: no new notification
	do(t, http.MethodPost, srv.URL+"/api/orders/", `{"id":"o1","tracking_number":"TRK1","customer_id":"c9"}`, nil)
	resp = do(t, http.MethodPost, srv.URL+"/api/orders/", `{"id":"o1","tracking_number":"TRK1","status":"in_transit","customer_id":"c9"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status = %d", resp.StatusCode)
	}

	notes, _ := st.ListNotificationsSince(time.Time{})
	if len(notes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notes))
	}
	last := notes[1]
	if last.Kind != "order_status" || last.OrderID != "o1" || last.Recipient != "c9" {
		t.Fatalf("notification = %+v", last)
	}
	if last.Title != "Order TRK1 is in transit" {
		t.Fatalf("title = %q", last.Title)
	}
	audit, _ := st.ListAudit(0)
	if len(audit) != 3 || audit[0].Action != "order_upsert" || audit[0].Actor != "api" {
		t.Fatalf("audit = %+v", audit)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/orders/", "", nil)
	var page ordersPage
	decode(t, resp, &page)
	if page.Count != 1 || page.Orders[0].Status != model.OrderInTransit {
		t.Fatalf("page = %+v", page)
	}
}

func TestUpsertOrderValidation(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore(), "")
	cases := map[string]string{
		"no identity":    `{"status":"pending"}`,
		"unknown status": `{"id":"o1","status":"lost"}`,
		"bad json":       `{"id":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/api/orders/", body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestPostNotification(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newServer(t, st, "")
	resp := do(t, http.MethodPost, srv.URL+"/api/notifications/", `{"title":"Depot closed early"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var n model.NotificationSummary
	decode(t, resp, &n)
	if n.ID == "" || n.Kind != "system" {
		t.Fatalf("notification = %+v", n)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/api/notifications/", `{}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty title: status = %d", resp.StatusCode)
	}
}

type failingStore struct {
	store.OrderStore
}

func (failingStore) Ping() error { return errors.New("backend down") }

func TestHealthReportsDegradedStore(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore(), "")
	resp := do(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	var hs model.HealthStatus
	decode(t, resp, &hs)
	if resp.StatusCode != http.StatusOK || hs.Status != "healthy" || hs.Environment != "test" {
		t.Fatalf("health = %d %+v", resp.StatusCode, hs)
	}

	srv = newServer(t, failingStore{store.NewMemoryStore()}, "")
	resp = do(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	hs = model.HealthStatus{}
	decode(t, resp, &hs)
	if resp.StatusCode != http.StatusServiceUnavailable || hs.Status != "degraded" || hs.Checks["store"] != "backend down" {
		t.Fatalf("health = %d %+v", resp.StatusCode, hs)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }, model.RoleAdmin)
	admin, _ := auth.Generate(1, "root", model.RoleAdmin, time.Minute)
	courier, _ := auth.Generate(2, "bike", model.RoleCourier, time.Minute)

	for _, tc := range []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer " + courier, http.StatusForbidden},
		{"Bearer " + admin, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("header %q: code = %d, want %d", tc.header, rec.Code, tc.want)
		}
	}
}
