package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"advancebot/internal/dialog"
	"advancebot/internal/ledger/memory"
	"advancebot/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mem := memory.NewSeeded()
	engine := dialog.New(dialog.Options{
		Sessions:     session.NewStore(time.Hour),
		Store:        mem,
		Audit:        mem,
		Catalog:      mem,
		Directory:    mem,
		ReadAttempts: 1,
		ReadBackoff:  time.Millisecond,
	})
	return NewServer(":0", engine)
}

func postMessage(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Shutdown(context.Background())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestMessageEndpoint(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Shutdown(context.Background())

	// Wrong method
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// Malformed JSON
	rr = postMessage(t, srv, `{"employee_id": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rr.Code)
	}

	// Missing employee ID
	rr = postMessage(t, srv, `{"text": "hi"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing employee_id, got %d", rr.Code)
	}

	// First contact asks for registration
	rr = postMessage(t, srv, `{"employee_id": "emp-1", "text": "hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Text    string   `json:"text"`
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !strings.Contains(resp.Text, "not registered") {
		t.Fatalf("unexpected first reply: %q", resp.Text)
	}

	// Register and reach the menu with options
	rr = postMessage(t, srv, `{"employee_id": "emp-1", "text": "Dana Kim"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !strings.Contains(resp.Text, "Welcome, Dana Kim") {
		t.Fatalf("expected a welcome, got %q", resp.Text)
	}
	if len(resp.Options) == 0 {
		t.Fatal("menu reply should carry options")
	}

	// Oversized body is rejected
	rr = postMessage(t, srv, `{"employee_id": "emp-1", "text": "`+strings.Repeat("x", maxMessageBody)+`"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Shutdown(context.Background())

	postMessage(t, srv, `{"employee_id": "emp-1", "text": "hi"}`)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}

	var metrics map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("bad metrics body: %v", err)
	}
	if metrics["active_sessions"] != 1 {
		t.Errorf("active_sessions = %d, want 1", metrics["active_sessions"])
	}
	if _, ok := metrics["commits_total"]; !ok {
		t.Error("metrics should include commits_total")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 61 within a minute should be rejected")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("a different client should not share the limit")
	}
}
