package embedding

import (
	"context"
	"sync"

	"github.com/hyperjump/shirabe/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. Texts map to bag-of-words hash vectors
// unless a fixed vector was registered with Set; FailOn makes Embed fail for chosen texts.
type MockEmbedder struct {
	dimensions int
	// FailOn, when set, returns an error for texts it reports as failing.
	FailOn func(text string) error

	mu    sync.RWMutex
	fixed map[string][]float32
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, fixed: make(map[string][]float32)}
}

// Set pins the embedding returned for text.
func (e *MockEmbedder) Set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = vec
}

// Embed returns the pinned vector for text or its hash vector.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailOn != nil {
		if err := e.FailOn(text); err != nil {
			return nil, err
		}
	}
	e.mu.RLock()
	vec, ok := e.fixed[text]
	e.mu.RUnlock()
	if ok {
		return vec, nil
	}
	return utils.HashVector(text, e.dimensions), nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
