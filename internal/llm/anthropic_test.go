package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/evidencecheck/internal/model"
)

func messagesServer(t *testing.T, status int, body any, check func(r *http.Request, req anthropicRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if check != nil {
			check(r, req)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnthropicProvider_Summarize_Success(t *testing.T) {
	resp := anthropicResponse{
		ID:   "msg_123",
		Type: "message",
		Role: "assistant",
		Content: []anthropicContent{
			{Type: "text", Text: "The narrative overstates the people count by one."},
			{Type: "text", Text: "  The video agrees on the vehicles.  "},
		},
		Model: "claude-3-5-sonnet-20241022",
		Usage: anthropicUsage{InputTokens: 50, OutputTokens: 50},
	}

	server := messagesServer(t, http.StatusOK, resp, func(r *http.Request, req anthropicRequest) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}
		if req.MaxTokens != 300 {
			t.Errorf("Expected max tokens 300, got %d", req.MaxTokens)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "The consistency score is 90/100") {
			t.Errorf("Expected the default prompt, got %+v", req.Messages)
		}
	})

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/", Timeout: 5, MaxTokens: 300})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	result, err := provider.Summarize(context.Background(), SummarizeRequest{
		Analysis: model.Analysis{Report: model.ConsistencyReport{OverallScore: 90}},
	})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	want := "The narrative overstates the people count by one.\n\nThe video agrees on the vehicles."
	if result.Summary != want {
		t.Errorf("Expected summary %q, got %q", want, result.Summary)
	}
	if result.TokensUsed != 100 {
		t.Errorf("Expected 100 tokens, got %d", result.TokensUsed)
	}
	if result.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("Expected model from response, got %s", result.Model)
	}
}

func TestAnthropicProvider_Summarize_APIError(t *testing.T) {
	errBody := map[string]any{
		"type":  "error",
		"error": map[string]string{"type": "authentication_error", "message": "invalid x-api-key"},
	}
	server := messagesServer(t, http.StatusUnauthorized, errBody, nil)

	provider, _ := NewAnthropicProvider(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := provider.Summarize(context.Background(), SummarizeRequest{Prompt: "p"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Errorf("Expected status and message in error, got %v", err)
	}
}

func TestAnthropicProvider_Summarize_EmptyContent(t *testing.T) {
	server := messagesServer(t, http.StatusOK, anthropicResponse{Model: "m"}, nil)

	provider, _ := NewAnthropicProvider(Config{APIKey: "k", BaseURL: server.URL})
	if _, err := provider.Summarize(context.Background(), SummarizeRequest{Prompt: "p"}); err == nil {
		t.Error("Expected error for empty content")
	}
}

func TestAnthropicProvider_IsAvailable(t *testing.T) {
	ok := messagesServer(t, http.StatusOK, anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "Hi"}}}, nil)
	provider, _ := NewAnthropicProvider(Config{APIKey: "k", BaseURL: ok.URL})
	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}

	down := messagesServer(t, http.StatusInternalServerError, map[string]string{}, nil)
	provider, _ = NewAnthropicProvider(Config{APIKey: "k", BaseURL: down.URL})
	if provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be unavailable")
	}
}

func TestNewAnthropicProvider(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}

	p, err := NewProvider(Config{Provider: "claude", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Expected name anthropic, got %s", p.Name())
	}
}
