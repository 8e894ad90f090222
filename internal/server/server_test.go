package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/dispatch"
	"aihub-gateway/internal/models"
	"aihub-gateway/internal/provider"
	"aihub-gateway/internal/store"
	"aihub-gateway/internal/uimap"
)

type stubProvider struct {
	name  string
	calls int
}

func (s *stubProvider) Name() string {
	return s.name
}

func (s *stubProvider) Generate(_ context.Context, req provider.GenerationRequest) (*provider.GenerationResult, error) {
	s.calls++
	return &provider.GenerationResult{Output: req.Prompt + "-response", FinishReason: "stop"}, nil
}

func newTestServer(t *testing.T, apiKey string, providers ...*stubProvider) (*Server, *store.MemoryStore) {
	t.Helper()

	registry := provider.NewRegistry()
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			t.Fatalf("register provider %s: %v", p.Name(), err)
		}
	}

	table, err := uimap.New()
	if err != nil {
		t.Fatalf("build uimap: %v", err)
	}

	sessions := store.NewMemoryStore()
	dispatcher := dispatch.New(registry, table, sessions)

	cfg := config.Config{}
	cfg.Server.Port = 8000
	cfg.Server.APIKey = apiKey
	cfg.Server.RequestTimeoutSeconds = 5
	cfg.Storage.Driver = config.StorageMemory

	srv, err := New(cfg, dispatcher, sessions)
	if err != nil {
		t.Fatalf("construct server: %v", err)
	}
	return srv, sessions
}

func doJSON(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.app.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	headers := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"X-XSS-Protection":       "1; mode=block",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestRequestLoggerRecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	logged := buf.String()
	if !strings.Contains(logged, "status=404") {
		t.Errorf("request log did not record the error status: %q", logged)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "", &stubProvider{name: "openai"})

	rec := doJSON(t, srv, http.MethodPost, "/api/chat",
		`{"prompt":"hello","models":["openai"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resp.Responses))
	}
	if resp.Responses[0].Model != "openai" || resp.Responses[0].Output != "hello-response" {
		t.Errorf("round trip record = %+v", resp.Responses[0])
	}
}

func TestChatRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t, "", &stubProvider{name: "openai"})

	tests := []struct {
		name string
		body string
	}{
		{"EmptyBody", ""},
		{"EmptyPrompt", `{"prompt":"  ","models":["openai"]}`},
		{"NoModels", `{"prompt":"hi","models":[]}`},
		{"MalformedJSON", `{"prompt":`},
		{"TrailingGarbage", `{"prompt":"hi","models":["openai"]}{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/chat", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	p := &stubProvider{name: "openai"}
	srv, _ := newTestServer(t, "topsecret", p)
	chatBody := `{"prompt":"hi","models":["openai"]}`

	t.Run("MissingKey", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/chat", chatBody, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/chat", chatBody,
			map[string]string{"X-API-Key": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	if p.calls != 0 {
		t.Fatalf("adapter invoked %d times before auth passed", p.calls)
	}

	t.Run("CorrectKey", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/chat", chatBody,
			map[string]string{"X-API-Key": "topsecret"})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200; body = %s", rec.Code, rec.Body)
		}
		if p.calls != 1 {
			t.Errorf("adapter calls = %d, want 1", p.calls)
		}
	})

	t.Run("HealthSkipsAuth", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestSessionCRUD(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", `{"title":"my chat"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	var created models.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created session: %v", err)
	}
	if created.ID == "" || created.Title != "my chat" {
		t.Fatalf("created session = %+v", created)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed models.ListSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listed.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(listed.Sessions))
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/api/sessions/"+created.ID, `{"title":"renamed"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rec.Code, rec.Body)
	}
	var patched models.GetSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &patched); err != nil {
		t.Fatalf("decode patched session: %v", err)
	}
	if patched.Session.Title != "renamed" {
		t.Errorf("patched title = %q", patched.Session.Title)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/sessions/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestSessionNotFoundCases(t *testing.T) {
	srv, _ := newTestServer(t, "", &stubProvider{name: "openai"})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"GetUnknown", http.MethodGet, "/api/sessions/nope", ""},
		{"DeleteUnknown", http.MethodDelete, "/api/sessions/nope", ""},
		{"PatchUnknown", http.MethodPatch, "/api/sessions/nope", `{"title":"x"}`},
		{"MessageToUnknown", http.MethodPost, "/api/sessions/nope/messages", `{"prompt":"hi","models":["openai"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, tt.method, tt.path, tt.body, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404; body = %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestSessionMessageFlow(t *testing.T) {
	srv, sessions := newTestServer(t, "", &stubProvider{name: "openai"})
	ctx := context.Background()

	session, err := sessions.CreateSession(ctx, "chat")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	path := fmt.Sprintf("/api/sessions/%s/messages", session.ID)
	rec := doJSON(t, srv, http.MethodPost, path, `{"prompt":"hello","models":["openai"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Responses) != 1 || resp.Responses[0].Output != "hello-response" {
		t.Fatalf("envelope = %+v", resp)
	}

	stored, err := sessions.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Errorf("expected user + assistant turns persisted, got %d", len(stored.Messages))
	}
}

func TestUnknownModelInChat(t *testing.T) {
	srv, _ := newTestServer(t, "", &stubProvider{name: "openai"})

	rec := doJSON(t, srv, http.MethodPost, "/api/chat",
		`{"prompt":"hi","models":["unknown-provider","openai"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, per-provider failures must not fail the request", rec.Code)
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Responses) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Responses))
	}
	if resp.Responses[0].Error == "" {
		t.Errorf("unknown id record = %+v", resp.Responses[0])
	}
	if resp.Responses[1].Error != "" || resp.Responses[1].Output == "" {
		t.Errorf("known provider disturbed: %+v", resp.Responses[1])
	}
}
