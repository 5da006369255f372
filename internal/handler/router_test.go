package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/smartspark/backend/internal/service/chat"
	"github.com/zhouzirui/smartspark/backend/internal/service/health"
)

type fixedCompleter string

func (f fixedCompleter) Complete(context.Context, string, []chat.Turn, string) (string, error) {
	return string(f), nil
}

func newTestRouter() http.Handler {
	store := chat.NewMemoryStore()
	svc := chatservice.NewService(store, fixedCompleter("Hello from SmartSpark"), chatservice.Options{}, zap.NewNop())
	readiness := health.NewService(health.NewStoreChecker("memory", store))
	return NewRouter(svc, readiness, []string{"*"}, zap.NewNop())
}

func TestRootLiveness(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "SmartSpark API is running!" {
		t.Fatalf("unexpected message %q", body["message"])
	}
}

func TestAPIRoutesAreMounted(t *testing.T) {
	r := newTestRouter()

	payload, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS headers on API responses")
	}

	for _, path := range []string{"/api/conversations", "/api/health", "/api/ready"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got %q", ct)
	}
}
