package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// batchLimit is the maximum number of texts per batch embedding request
// accepted by the Generative AI API.
const batchLimit = 100

// GeminiEmbedder produces embeddings through the Google Generative AI API
// (text-embedding-004 by default, 768 dimensions).
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini creates a client for the given embedding model. A client
// construction failure is reported as ErrModelLoad so callers can abort
// startup of dependent features.
func NewGemini(ctx context.Context, apiKey, model string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing GOOGLE_API_KEY", ErrModelLoad)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return &GeminiEmbedder{client: client, model: model, dim: dim}, nil
}

// Embed embeds texts in API-sized batches, preserving input order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchLimit {
		end := start + batchLimit
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch embedding failed at offset %d: %w", start, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", end-start, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding in batch response")
			}
			out = append(out, emb.Values)
		}
	}

	return out, nil
}

// EmbedOne embeds a single text, typically a user query.
func (e *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

// Dimension returns the configured vector dimension of the model.
func (e *GeminiEmbedder) Dimension() int { return e.dim }

// Model returns the model identity, used to tag persisted indexes.
func (e *GeminiEmbedder) Model() string { return e.model }

// Close releases the underlying API client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
