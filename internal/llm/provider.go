// Package llm contains the chat-completion backends behind one adapter
// interface. Payload shape assumptions live here and nowhere else.
package llm

import (
	"context"
	"errors"
	"fmt"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the normalized result of one completion call.
type ChatResponse struct {
	Content string
	Usage   Usage
	Model   string
}

// Provider is implemented by every backend adapter.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var (
	ErrMissingAPIKey = errors.New("api key not configured")
	ErrEmptyResponse = errors.New("provider returned no content")
)

// StatusError is returned when a backend answers with a non-success status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: request failed: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}
