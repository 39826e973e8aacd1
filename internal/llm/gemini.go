package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// GenerativeModelClient is satisfied by *genai.Client.
type GenerativeModelClient interface {
	GenerativeModel(name string) *genai.GenerativeModel
}

// GeminiProvider adapts the Gemini SDK to the Provider interface.
type GeminiProvider struct {
	name   string
	client GenerativeModelClient
}

func NewGeminiProvider(name string, client GenerativeModelClient) *GeminiProvider {
	return &GeminiProvider{name: name, client: client}
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("%s: %w", p.name, ErrMissingAPIKey)
	}

	system, history, last, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	model := p.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("%s: send message: %w", p.name, err)
	}

	content := responseText(resp)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}

	return &ChatResponse{
		Content: content,
		Usage:   responseUsage(resp),
		Model:   req.Model,
	}, nil
}

// toGeminiContents splits a chat-completions style message list into a system
// instruction, prior history and the final user turn.
func toGeminiContents(messages []Message) (string, []*genai.Content, string, error) {
	var system []string
	var history []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, "", fmt.Errorf("conversation must end with a user message")
	}
	lastContent := history[len(history)-1]
	last := string(lastContent.Parts[0].(genai.Text))
	history = history[:len(history)-1]
	// Gemini history must open with a user turn.
	for len(history) > 0 && history[0].Role == "model" {
		history = history[1:]
	}
	return strings.Join(system, "\n\n"), history, last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func responseUsage(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}
