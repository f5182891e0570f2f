// Package embedding maps text to fixed-dimension dense vectors using a
// pretrained embedding model.
package embedding

import (
	"context"
	"errors"
)

// ErrModelLoad indicates the embedding model could not be initialized.
// This is fatal: components depending on the embedder must not start.
var ErrModelLoad = errors.New("embedding model load failed")

// Embedder converts text into dense vectors. Implementations hold one fixed
// model for their lifetime: output order matches input order 1:1 and the
// dimension is constant per instance. Vectors from different model
// identities must never share an index.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedOne embeds a single text (the query path).
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length produced by this model.
	Dimension() int
	// Model returns the model identity that produced the vectors.
	Model() string
}
