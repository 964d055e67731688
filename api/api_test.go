package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fintechx-ops/config"
	"fintechx-ops/core/auth"
	"fintechx-ops/core/batch"
	"fintechx-ops/core/rbac"
	"fintechx-ops/core/store"
	"fintechx-ops/core/utils"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.AppConfig{
		ListenAddr: "127.0.0.1:0",
		AppEnv:     "dev",
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		Pepper:     "test-pepper",
		Observability: config.ObservabilityConfig{
			MetricsEnabled: true,
		},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	srv, err := NewServer(cfg, db, logger)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv
}

func seedAdmin(t *testing.T, srv *Server) {
	t.Helper()
	_, err := srv.Authority().CreateUser(context.Background(), auth.CreateUserInput{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "Adm1n-secret",
		Role:     rbac.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
}

func login(t *testing.T, ts *httptest.Server, username, password string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatalf("no session cookie in login response")
	return nil
}

func doJSON(t *testing.T, method, url string, cookie *http.Cookie, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestLoginAndMe(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cookie := login(t, ts, "admin", "Adm1n-secret")

	resp := doJSON(t, "GET", ts.URL+"/api/auth/me", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	user := body["user"].(map[string]any)
	if user["username"] != "admin" {
		t.Fatalf("me returned %v", user)
	}
	if _, ok := user["password_hash"]; ok {
		t.Fatalf("password hash leaked in response")
	}
	perms, ok := body["permissions"].([]any)
	if !ok || len(perms) == 0 {
		t.Fatalf("no permissions in me response: %v", body)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/users/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestPermissionEnforcement(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	_, err := srv.Authority().CreateUser(context.Background(), auth.CreateUserInput{
		Username: "viewer",
		Email:    "viewer@example.com",
		Password: "Vi3wer-secret",
		Role:     rbac.RoleViewer,
	})
	if err != nil {
		t.Fatalf("create viewer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cookie := login(t, ts, "viewer", "Vi3wer-secret")
	resp := doJSON(t, "GET", ts.URL+"/api/users/", cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer listing users: status %d, want 403", resp.StatusCode)
	}
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	cookie := login(t, ts, "admin", "Adm1n-secret")

	resp := doJSON(t, "POST", ts.URL+"/api/users/", cookie, map[string]any{
		"username": "carol",
		"email":    "carol@example.com",
		"password": "Car0l-secret",
		"role":     "Operator",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	id := body["user"].(map[string]any)["id"].(string)

	resp = doJSON(t, "PATCH", ts.URL+"/api/users/"+id, cookie, map[string]any{"role": "Manager"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if body["user"].(map[string]any)["role"] != "Manager" {
		t.Fatalf("role not updated: %v", body)
	}

	resp = doJSON(t, "POST", ts.URL+"/api/users/"+id+"/deactivate", cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status %d", resp.StatusCode)
	}

	resp = doJSON(t, "DELETE", ts.URL+"/api/users/"+id, cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	cookie := login(t, ts, "admin", "Adm1n-secret")

	admin, _ := srv.Authority().GetUserByUsername("admin")
	resp := doJSON(t, "DELETE", ts.URL+"/api/users/"+admin.ID, cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	srv.Batches().RegisterProcessor(batch.TypePayment, func(map[string]any, batch.Type) batch.Result {
		return batch.Result{Success: true}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	cookie := login(t, ts, "admin", "Adm1n-secret")

	resp := doJSON(t, "POST", ts.URL+"/api/batches/", cookie, map[string]any{
		"name":       "payments",
		"batch_type": "Payment",
		"items":      []map[string]any{{"amount": 10}, {"amount": 20}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	id := body["job"].(map[string]any)["id"].(string)

	resp = doJSON(t, "POST", ts.URL+"/api/batches/"+id+"/start", cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := srv.Batches().GetJob(id)
		if ok && job.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/batches/"+id+"/progress", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if body["progress"].(float64) != 100.0 || body["status"] != "Completed" {
		t.Fatalf("progress: %v", body)
	}

	// The finished job lands in the archive.
	archDeadline := time.Now().Add(2 * time.Second)
	for {
		resp = doJSON(t, "GET", ts.URL+"/api/batches/archive", cookie, nil)
		body = decodeBody(t, resp)
		if rows, ok := body["batches"].([]any); ok && len(rows) == 1 {
			break
		}
		if time.Now().After(archDeadline) {
			t.Fatalf("archive never populated: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/batches/archive/"+id, cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive get status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFraudEvaluateOverHTTP(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	cookie := login(t, ts, "admin", "Adm1n-secret")

	resp := doJSON(t, "POST", ts.URL+"/api/fraud/evaluate", cookie, map[string]any{
		"id":      "t-1",
		"amount":  5000,
		"country": "RU",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["flagged"] != true {
		t.Fatalf("expected flagged: %v", body)
	}
	if body["highest_risk"] != "High" {
		t.Fatalf("highest risk: %v", body["highest_risk"])
	}

	resp = doJSON(t, "GET", ts.URL+"/api/fraud/rules", cookie, nil)
	body = decodeBody(t, resp)
	if rules, ok := body["rules"].([]any); !ok || len(rules) != 4 {
		t.Fatalf("rules: %v", body)
	}
}

func TestFraudRuleManagementOverHTTP(t *testing.T) {
	srv := testServer(t)
	seedAdmin(t, srv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	cookie := login(t, ts, "admin", "Adm1n-secret")

	resp := doJSON(t, "POST", ts.URL+"/api/fraud/rules", cookie, map[string]any{
		"type":      "amount_threshold",
		"threshold": 250,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add rule status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["name"] != "Amount Threshold" {
		t.Fatalf("rule name: %v", body)
	}

	resp = doJSON(t, "POST", ts.URL+"/api/fraud/rules", cookie, map[string]any{"type": "bogus"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus type status %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/fraud/rules", cookie, nil)
	body = decodeBody(t, resp)
	if rules, ok := body["rules"].([]any); !ok || len(rules) != 5 {
		t.Fatalf("rules after add: %v", body)
	}

	resp = doJSON(t, "DELETE", ts.URL+"/api/fraud/rules/Amount%20Threshold", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove rule status %d", resp.StatusCode)
	}
	resp = doJSON(t, "GET", ts.URL+"/api/fraud/rules", cookie, nil)
	body = decodeBody(t, resp)
	if rules, ok := body["rules"].([]any); !ok || len(rules) != 3 {
		t.Fatalf("rules after remove: %v", body)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}
