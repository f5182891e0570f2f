// Package rag turns retrieved document passages and a question into a
// grounded answer from a pluggable LLM backend.
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pdf-query-assistant/internal/logger"
	"pdf-query-assistant/internal/vectorindex"
)

// fallbackAnswer is returned verbatim when retrieval found nothing; the
// backend is never called in that case.
const fallbackAnswer = "I couldn't find relevant information in the document to answer your question."

// systemInstruction constrains the model to the supplied context and tells
// it to admit insufficiency rather than fabricate.
const systemInstruction = "You are a helpful assistant that answers questions based on the provided " +
	"context from PDF documents. Answer the question based on the context provided. If the context " +
	"doesn't contain enough information to answer the question, say so. Be concise and accurate."

// backend is the single capability every provider implements.
type backend interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Close() error
}

// Generator owns one provider backend and the sampling temperature.
// Construction resolves the provider's credential from the environment;
// failures are typed so the caller can distinguish a missing key from an
// unknown provider.
type Generator struct {
	mu          sync.Mutex
	provider    Provider
	temperature float64
	backend     backend
}

// New builds a Generator for the given provider. Temperature must be in
// [0, 1]. No backend state survives a failed construction.
func New(provider Provider, temperature float64) (*Generator, error) {
	if temperature < 0 || temperature > 1 {
		return nil, fmt.Errorf("temperature must be in [0, 1], got %v", temperature)
	}
	b, err := newBackend(provider, temperature)
	if err != nil {
		return nil, err
	}
	return &Generator{provider: provider, temperature: temperature, backend: b}, nil
}

// newBackend resolves the credential and constructs the provider client.
func newBackend(provider Provider, temperature float64) (backend, error) {
	key, err := resolveCredential(provider)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderGemini:
		return newGeminiBackend(key, temperature)
	case ProviderGroq:
		return newGroqBackend(key, temperature), nil
	case ProviderCohere:
		return newCohereBackend(key, temperature), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// Generate answers a question from the retrieved chunks. Backend failures
// are surfaced as the answer text so a bad provider call costs the user one
// chat turn, not the session.
func (g *Generator) Generate(ctx context.Context, question string, retrieved []vectorindex.Result) string {
	if len(retrieved) == 0 {
		return fallbackAnswer
	}

	contextBlock := buildContext(retrieved)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", contextBlock, question)

	// Holding the lock across the backend call serializes generation with
	// SwitchProvider and SetTemperature, which close the backend they
	// replace. An in-flight generation must never see a closed client.
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend == nil {
		return "Error generating response: generator is closed"
	}
	answer, err := g.backend.Generate(ctx, systemInstruction, user)
	if err != nil {
		logger.Error("Answer generation failed", "provider", string(g.provider), "error", err)
		return fmt.Sprintf("Error generating response: %v", err)
	}
	return answer
}

// buildContext concatenates chunk texts in ranked order, separated by a
// blank line. Scores are excluded from the prompt.
func buildContext(retrieved []vectorindex.Result) string {
	texts := make([]string, len(retrieved))
	for i, r := range retrieved {
		texts[i] = r.Chunk
	}
	return strings.Join(texts, "\n\n")
}

// SwitchProvider rebuilds the backend for a new provider using the current
// temperature. On failure the existing backend stays active, so a typo'd
// provider or missing key never strands the session without a generator.
func (g *Generator) SwitchProvider(provider Provider) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := newBackend(provider, g.temperature)
	if err != nil {
		return err
	}
	if g.backend != nil {
		if err := g.backend.Close(); err != nil {
			logger.Warn("Closing previous backend failed", "provider", string(g.provider), "error", err)
		}
	}
	g.provider = provider
	g.backend = b
	return nil
}

// SetTemperature rebuilds the current backend with a new temperature.
func (g *Generator) SetTemperature(temperature float64) error {
	if temperature < 0 || temperature > 1 {
		return fmt.Errorf("temperature must be in [0, 1], got %v", temperature)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if temperature == g.temperature {
		return nil
	}
	b, err := newBackend(g.provider, temperature)
	if err != nil {
		return err
	}
	if g.backend != nil {
		g.backend.Close()
	}
	g.temperature = temperature
	g.backend = b
	return nil
}

// Provider returns the active provider identifier.
func (g *Generator) Provider() Provider {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.provider
}

// Temperature returns the active sampling temperature.
func (g *Generator) Temperature() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.temperature
}

// Close releases the active backend.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.backend == nil {
		return nil
	}
	err := g.backend.Close()
	g.backend = nil
	return err
}
