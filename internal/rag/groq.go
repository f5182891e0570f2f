package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"
	groqModel   = "llama3-8b-8192"
)

// groqBackend talks to Groq's OpenAI-compatible chat completions endpoint.
type groqBackend struct {
	client      *openai.Client
	temperature float64
}

func newGroqBackend(apiKey string, temperature float64) *groqBackend {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL
	return &groqBackend{
		client:      openai.NewClientWithConfig(cfg),
		temperature: temperature,
	}
}

func (b *groqBackend) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       groqModel,
		Temperature: float32(b.temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *groqBackend) Close() error { return nil }
