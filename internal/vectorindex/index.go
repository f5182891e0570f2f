// Package vectorindex stores chunk embeddings and answers exact
// nearest-neighbor queries by squared L2 distance.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pdf-query-assistant/internal/embedding"
)

var (
	// ErrInvalidK is returned when a search requests a non-positive k.
	ErrInvalidK = errors.New("search k must be positive")
	// ErrCorrupt is returned when a persisted snapshot cannot be decoded.
	ErrCorrupt = errors.New("corrupt index snapshot")
)

// Result is one retrieved chunk with its squared L2 distance to the query.
// Lower score means more similar. ID is the chunk's insertion position.
type Result struct {
	ID    int
	Chunk string
	Score float64
}

// Index is a brute-force exact vector index over one document's chunks.
// Build, Save and Load are exclusive; Search is safe to run concurrently
// once Build completes. Corpora are single-document-sized, so the O(N*D)
// scan per query is the intended algorithm.
type Index struct {
	mu  sync.RWMutex
	emb embedding.Embedder

	model   string
	dim     int
	chunks  []string
	vectors [][]float32
}

// New returns an empty index that embeds through emb.
func New(emb embedding.Embedder) *Index {
	return &Index{
		emb:   emb,
		model: emb.Model(),
		dim:   emb.Dimension(),
	}
}

// SetEmbedder swaps the embedder that produces query vectors. The
// replacement must emit vectors in the same space as the indexed content:
// its model identity and dimension have to match what the index holds.
// This is the recovery path after loading a snapshot written under a
// different model than the one currently configured.
func (ix *Index) SetEmbedder(emb embedding.Embedder) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if emb.Model() != ix.model || emb.Dimension() != ix.dim {
		return fmt.Errorf("embedder %s (dim %d) does not match index %s (dim %d)",
			emb.Model(), emb.Dimension(), ix.model, ix.dim)
	}
	ix.emb = emb
	return nil
}

// Build embeds all chunks and replaces any prior index content. An empty
// chunk sequence yields a valid empty index: searches return no results
// rather than failing.
func (ix *Index) Build(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		ix.mu.Lock()
		defer ix.mu.Unlock()
		ix.chunks = nil
		ix.vectors = nil
		ix.model = ix.emb.Model()
		ix.dim = ix.emb.Dimension()
		return nil
	}

	vectors, err := ix.emb.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("inconsistent vector dimension at chunk %d: %d vs %d", i, len(v), dim)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = append([]string(nil), chunks...)
	ix.vectors = vectors
	ix.model = ix.emb.Model()
	ix.dim = dim
	return nil
}

// Search embeds the query and returns the min(k, N) stored chunks with the
// lowest squared L2 distance, ascending. Equal distances are broken by
// insertion id ascending so results are deterministic. An empty index
// returns an empty result set, never an error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	ix.mu.RLock()
	n := len(ix.vectors)
	emb := ix.emb
	ix.mu.RUnlock()
	if n == 0 {
		return nil, nil
	}

	qv, err := emb.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(qv) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(qv), ix.dim)
	}

	results := make([]Result, len(ix.vectors))
	for i, v := range ix.vectors {
		results[i] = Result{ID: i, Chunk: ix.chunks[i], Score: squaredL2(qv, v)}
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score < results[b].Score
		}
		return results[a].ID < results[b].ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Dimension returns the vector dimension of the stored index.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Model returns the identity of the embedding model that produced the
// stored vectors. After a Load this may differ from the live embedder's
// model; query embeddings must come from the same identity or retrieval
// quality silently degrades, so callers should compare and reconstruct the
// embedder when they differ.
func (ix *Index) Model() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.model
}

// Chunks returns a copy of the stored chunk sequence in insertion order.
func (ix *Index) Chunks() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]string(nil), ix.chunks...)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
