package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/hyperjump/shirabe/internal/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds the number of embedding requests in flight per batch.
const DefaultBatchSize = 10

// BackendEmbedder embeds text with an llm.EmbeddingModel.
type BackendEmbedder struct {
	model     llm.EmbeddingModel
	batchSize int
	cache     *EmbeddingCache
	logger    *zap.Logger

	mu   sync.RWMutex
	dims int
}

// BackendOption configures a BackendEmbedder.
type BackendOption func(*BackendEmbedder)

// WithBatchSize sets how many texts are embedded concurrently.
func WithBatchSize(n int) BackendOption {
	return func(e *BackendEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCache enables a content-addressed LRU cache of the given capacity.
func WithCache(capacity int) BackendOption {
	return func(e *BackendEmbedder) {
		if capacity > 0 {
			e.cache = NewEmbeddingCache(capacity)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) BackendOption {
	return func(e *BackendEmbedder) {
		e.logger = logger
	}
}

// NewBackendEmbedder returns an embedder backed by model.
func NewBackendEmbedder(model llm.EmbeddingModel, opts ...BackendOption) *BackendEmbedder {
	e := &BackendEmbedder{model: model, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Embed returns the embedding for text, consulting the cache first.
func (e *BackendEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if e.cache != nil {
		if vec, ok := e.cache.Get(key); ok {
			return vec, nil
		}
	}
	vec, err := e.model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vec)
	}
	e.mu.Unlock()
	if e.cache != nil {
		e.cache.Set(key, vec)
	}
	return vec, nil
}

// EmbedBatch embeds texts in batches of batchSize. Texts within a batch are embedded concurrently;
// any failure aborts the call.
func (e *BackendEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				vec, err := e.Embed(gctx, texts[i])
				if err != nil {
					return fmt.Errorf("text %d: %w", i, err)
				}
				out[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.logger.Debug("embedding batch failed", zap.Int("batch_start", start), zap.Error(err))
			return nil, err
		}
	}
	return out, nil
}

// Dimensions returns the vector size observed so far, or 0 before the first call.
func (e *BackendEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Close logs cache statistics. The backend owns its connections.
func (e *BackendEmbedder) Close() error {
	if e.cache != nil {
		st := e.cache.Stats()
		e.logger.Debug("embedding cache closed",
			zap.Int("entries", st.Entries), zap.Int64("hits", st.Hits), zap.Int64("misses", st.Misses))
	}
	return nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
