package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	return client, srv
}

func chatReq(model string) service.ChatRequest {
	return service.ChatRequest{
		Model:       model,
		Messages:    []service.ChatMessage{service.UserMessage("hello")},
		Temperature: 0.3,
		MaxTokens:   256,
	}
}

// === Happy path ===

func TestChatPlainContent(t *testing.T) {
	var gotReq Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"total_tokens":12}}`))
	})

	got, err := client.Chat(context.Background(), chatReq("openai/gpt-5.2"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hi there" {
		t.Fatalf("got %q", got)
	}
	// Model id must pass through unchanged, prefix included.
	if gotReq.Model != "openai/gpt-5.2" {
		t.Fatalf("model rewritten to %q", gotReq.Model)
	}
	if gotReq.Temperature != 0.3 {
		t.Fatalf("temperature = %v", gotReq.Temperature)
	}
}

func TestChatPartsContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}]}`))
	})
	got, err := client.Chat(context.Background(), chatReq("m"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "ab" {
		t.Fatalf("got %q", got)
	}
}

// === Artifact filtering and deep extraction ===

func TestChatArtifactFallsThroughToDeepExtract(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "gen-1712345678-AbCdEf123456",
			"choices": [{"message": {"role": "assistant", "content": "chatcmpl-9xYzAbCdEfGhIjKl"}}],
			"output": {"text": "recovered answer from a nested field"}
		}`))
	})
	got, err := client.Chat(context.Background(), chatReq("m"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "recovered answer from a nested field" {
		t.Fatalf("got %q", got)
	}
}

func TestChatEmptyIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"req-0123456789abcdef0123","choices":[{"message":{"role":"assistant","content":""}}]}`))
	})
	got, err := client.Chat(context.Background(), chatReq("m"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

// === Error classification ===

func TestChatStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   service.LLMErrorKind
	}{
		{http.StatusUnauthorized, service.ErrKindAuth},
		{http.StatusPaymentRequired, service.ErrKindBudget},
		{http.StatusBadRequest, service.ErrKindBadRequest},
		{http.StatusTooManyRequests, service.ErrKindTransient},
		{http.StatusBadGateway, service.ErrKindTransient},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"message":"upstream said no"}}`))
		})
		_, err := client.Chat(context.Background(), chatReq("m"))
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var llmErr *service.LLMError
		if !errors.As(err, &llmErr) {
			t.Fatalf("status %d: not an LLMError: %v", tc.status, err)
		}
		if llmErr.Kind != tc.kind {
			t.Errorf("status %d: kind = %s, want %s", tc.status, llmErr.Kind, tc.kind)
		}
		if llmErr.StatusCode != tc.status {
			t.Errorf("status %d: StatusCode = %d", tc.status, llmErr.StatusCode)
		}
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"}, zap.NewNop())
	_, err := client.Chat(context.Background(), chatReq("m"))
	var llmErr *service.LLMError
	if !errors.As(err, &llmErr) || llmErr.Kind != service.ErrKindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestChatContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Chat(ctx, chatReq("m"))
	var llmErr *service.LLMError
	if !errors.As(err, &llmErr) || llmErr.Kind != service.ErrKindCancelled {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

// === Usage callback ===

func TestChatReportsUsage(t *testing.T) {
	var gotModel string
	var gotTokens int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer srv.Close()
	client := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "k",
		OnUsage: func(model string, tokens int) { gotModel, gotTokens = model, tokens },
	}, zap.NewNop())

	if _, err := client.Chat(context.Background(), chatReq("x-ai/grok-4.1-fast")); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotModel != "x-ai/grok-4.1-fast" || gotTokens != 15 {
		t.Fatalf("usage callback got (%q, %d)", gotModel, gotTokens)
	}
}

// === Base URL handling ===

func TestNewClientStripsPastedEndpoint(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://openrouter.ai/api/v1/chat/completions", APIKey: "k"}, zap.NewNop())
	if client.baseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("baseURL = %q", client.baseURL)
	}
	client = NewClient(Config{APIKey: "k"}, zap.NewNop())
	if client.baseURL != defaultBaseURL {
		t.Fatalf("default baseURL = %q", client.baseURL)
	}
}
