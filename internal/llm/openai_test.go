package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, func()) {
	t.Helper()
	server := httptest.NewServer(handler)

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	})
	if err != nil {
		server.Close()
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, server.Close
}

func TestOpenAIProvider_Complete_Success(t *testing.T) {
	var got openai.ChatCompletionRequest
	provider, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "  YES \n"},
			}},
			Usage: openai.Usage{TotalTokens: 42},
		})
	})
	defer done()

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		System: "system text",
		Prompt: "user text",
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "YES" {
		t.Errorf("Expected trimmed reply YES, got %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("Expected 42 tokens, got %d", resp.TokensUsed)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "system text" || got.Messages[1].Content != "user text" {
		t.Errorf("Unexpected messages: %+v", got.Messages)
	}
	if got.Temperature <= 0 || got.Temperature > 0.001 {
		t.Errorf("Expected near-zero temperature to be sent, got %v", got.Temperature)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("Expected JSON response format")
	}
	if got.MaxTokens != 1000 {
		t.Errorf("Expected default max tokens 1000, got %d", got.MaxTokens)
	}
}

func TestOpenAIProvider_Complete_APIError(t *testing.T) {
	provider, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key","type":"invalid_request_error"}}`))
	})
	defer done()

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "OpenAI API error") {
		t.Errorf("Expected wrapped API error, got: %v", err)
	}
}

func TestOpenAIProvider_Complete_NoChoices(t *testing.T) {
	provider, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{Model: "gpt-4o-mini"})
	})
	defer done()

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "no response") {
		t.Errorf("Expected no response error, got: %v", err)
	}
}

func TestOpenAIProvider_Complete_Timeout(t *testing.T) {
	provider, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := provider.Complete(ctx, CompletionRequest{Prompt: "x"}); err == nil {
		t.Error("Expected timeout error, got nil")
	}
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	provider, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ModelsList{})
	})
	defer done()

	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}
}
