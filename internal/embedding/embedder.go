// Package embedding provides text embedding through the language-model backend, caching and similarity.
package embedding

import "context"

var (
	_ Embedder = (*BackendEmbedder)(nil)
	_ Embedder = (*MockEmbedder)(nil)
)

// Embedder produces vector embeddings for text. Vectors from one Embedder share a length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
