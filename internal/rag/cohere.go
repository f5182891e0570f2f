package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	cohereChatURL = "https://api.cohere.com/v1/chat"
	cohereModel   = "command-r"
)

type cohereRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble,omitempty"`
	Temperature float64 `json:"temperature"`
}

type cohereResponse struct {
	Text    string `json:"text"`
	Message string `json:"message,omitempty"` // error payloads use this field
}

// cohereBackend calls Cohere's chat API directly over HTTP.
type cohereBackend struct {
	apiKey      string
	temperature float64
	httpClient  *http.Client
}

func newCohereBackend(apiKey string, temperature float64) *cohereBackend {
	return &cohereBackend{
		apiKey:      apiKey,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (b *cohereBackend) Generate(ctx context.Context, system, user string) (string, error) {
	payload := cohereRequest{
		Model:       cohereModel,
		Message:     user,
		Preamble:    system,
		Temperature: b.temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling cohere request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cohereChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building cohere request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cohere request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading cohere response: %w", err)
	}

	var parsed cohereResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding cohere response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Message
		if msg == "" {
			msg = string(raw)
		}
		return "", fmt.Errorf("cohere API error (status %d): %s", resp.StatusCode, msg)
	}
	if parsed.Text == "" {
		return "", fmt.Errorf("cohere returned empty text")
	}
	return parsed.Text, nil
}

func (b *cohereBackend) Close() error { return nil }
