package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/provider"
)

func newTestProvider(t *testing.T, apiKey string, handler http.HandlerFunc) *Provider {
	t.Helper()

	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	p, err := New("anthropic", config.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: upstream.URL,
	}, provider.Defaults{Model: "claude-test"}, upstream.Client())
	if err != nil {
		t.Fatalf("construct provider: %v", err)
	}
	return p
}

func TestGenerateSuccess(t *testing.T) {
	var gotPayload map[string]any
	p := newTestProvider(t, "sk-ant", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}

		resp := map[string]any{
			"id": "msg-1",
			"content": []map[string]string{
				{"type": "text", "text": "part one "},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "part two"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 3, "output_tokens": 7},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := p.Generate(context.Background(), provider.GenerationRequest{
		Prompt:       "hello",
		SystemPrompt: "be nice",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Output != "part one part two" {
		t.Errorf("content blocks not flattened: %q", result.Output)
	}
	if result.FinishReason != "end_turn" {
		t.Errorf("finish reason = %q", result.FinishReason)
	}
	if result.Usage["output_tokens"] != float64(7) {
		t.Errorf("usage not passed through: %+v", result.Usage)
	}

	if gotPayload["system"] != "be nice" {
		t.Errorf("payload system = %v", gotPayload["system"])
	}
	// max_tokens is mandatory for the messages API.
	if gotPayload["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("payload max_tokens = %v, want default %d", gotPayload["max_tokens"], defaultMaxTokens)
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	p := newTestProvider(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called when no key is configured")
	})

	_, err := p.Generate(context.Background(), provider.GenerationRequest{Prompt: "hi"})
	if !errors.Is(err, provider.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	p := newTestProvider(t, "sk-ant", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "invalid_request_error", "message": "bad model"},
		})
	})

	_, err := p.Generate(context.Background(), provider.GenerationRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Fatalf("err = %v, want upstream error surfaced", err)
	}
}
