package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderChat(t *testing.T) {
	t.Run("Normalizes a successful completion", func(t *testing.T) {
		var got chatCompletionRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"One day at a time."}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
		}))
		defer server.Close()

		p := NewOpenAIProvider("deepseek", server.URL+"/", "test-key", time.Second)
		resp, err := p.Chat(context.Background(), ChatRequest{
			Model:       "deepseek-chat",
			Messages:    []Message{{Role: "user", Content: "hello"}},
			Temperature: 0.7,
			MaxTokens:   300,
		})

		require.NoError(t, err)
		assert.Equal(t, "One day at a time.", resp.Content)
		assert.Equal(t, 17, resp.Usage.TotalTokens)
		assert.Equal(t, "deepseek-chat", got.Model)
		assert.Equal(t, 300, got.MaxTokens)
		assert.Equal(t, 0.7, got.Temperature)
		assert.Equal(t, "hello", got.Messages[0].Content)
	})

	t.Run("Non-success status becomes StatusError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
		}))
		defer server.Close()

		p := NewOpenAIProvider("groq", server.URL, "test-key", time.Second)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, "groq", statusErr.Provider)
	})

	t.Run("Empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		p := NewOpenAIProvider("groq", server.URL, "test-key", time.Second)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("Missing key fails before any request", func(t *testing.T) {
		p := NewOpenAIProvider("groq", "http://127.0.0.1:1", "", time.Second)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("Timeout surfaces as error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		p := NewOpenAIProvider("slow", server.URL, "test-key", 50*time.Millisecond)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})
		assert.Error(t, err)
	})
}
