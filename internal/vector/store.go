package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// Store defaults.
const (
	DefaultCollection = "documents"
	DefaultBatchSize  = 50
)

// Store persists chunks in one collection of a Backend and searches them.
type Store struct {
	backend   Backend
	embedder  embedding.Embedder
	name      string
	batchSize int
	logger    *zap.Logger

	mu   sync.Mutex
	coll Collection
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCollection sets the collection name.
func WithCollection(name string) StoreOption {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithUpsertBatchSize sets how many records go into one upsert request.
func WithUpsertBatchSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns a Store over backend. Chunks without embeddings and search queries are
// embedded with embedder.
func NewStore(backend Backend, embedder embedding.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		backend:   backend,
		embedder:  embedder,
		name:      DefaultCollection,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Initialize attaches to the collection, creating it if absent. It is safe to call
// concurrently and repeatedly; after a failure the next call tries again.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.collection(ctx)
	return err
}

func (s *Store) collection(ctx context.Context) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll != nil {
		return s.coll, nil
	}
	coll, err := s.backend.GetOrCreateCollection(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("initialize collection %s: %w", s.name, err)
	}
	s.coll = coll
	s.logger.Info("vector collection ready", zap.String("collection", s.name))
	return coll, nil
}

// AddChunks embeds chunks that have no vector yet and upserts them in batches.
// All embeddings are computed before the first write.
func (s *Store) AddChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}

	var missing []int
	var texts []string
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, c.Content)
		}
	}
	if len(missing) > 0 {
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed chunks: got %d embeddings for %d chunks", len(vecs), len(texts))
		}
		for j, i := range missing {
			chunks[i].Embedding = vecs[j]
		}
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		records := make([]Record, 0, end-start)
		for _, c := range chunks[start:end] {
			records = append(records, Record{
				ID:        c.ID,
				Embedding: c.Embedding,
				Document:  c.Content,
				Metadata:  FlattenChunk(c),
			})
		}
		if err := coll.Upsert(ctx, records); err != nil {
			return fmt.Errorf("upsert chunks %d-%d: %w", start, end-1, err)
		}
	}
	s.flush()
	return nil
}

// Search embeds query and returns up to k chunks with similarity >= threshold,
// highest first. Similarity is 1 - cosine distance.
func (s *Store) Search(ctx context.Context, query string, k int, threshold float64) ([]*models.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.SearchVector(ctx, vec, k, threshold)
}

// SearchVector is Search with a precomputed query embedding.
func (s *Store) SearchVector(ctx context.Context, vec []float32, k int, threshold float64) ([]*models.SearchResult, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	matches, err := coll.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results := make([]*models.SearchResult, 0, len(matches))
	for _, m := range matches {
		score := 1 - m.Distance
		if score < threshold {
			continue
		}
		results = append(results, &models.SearchResult{
			Chunk: UnflattenChunk(m.ID, m.Document, m.Metadata),
			Score: score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i, r := range results {
		r.Rank = i + 1
	}
	return results, nil
}

// GetChunksForDocument returns a document's chunks ordered by position.
func (s *Store) GetChunksForDocument(ctx context.Context, docID string) ([]*models.Chunk, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	records, err := coll.Get(ctx, Where{KeyDocumentID: docID})
	if err != nil {
		return nil, fmt.Errorf("get chunks for %s: %w", docID, err)
	}
	chunks := make([]*models.Chunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, UnflattenChunk(r.ID, r.Document, r.Metadata))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// DeleteDocument removes every chunk of docID and returns how many were removed.
// A document without chunks is not an error.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (int, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return 0, err
	}
	records, err := coll.Get(ctx, Where{KeyDocumentID: docID})
	if err != nil {
		return 0, fmt.Errorf("find chunks for %s: %w", docID, err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := coll.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete chunks for %s: %w", docID, err)
	}
	s.flush()
	return len(ids), nil
}

// ListDocumentIDs returns the distinct document IDs in the collection, sorted.
func (s *Store) ListDocumentIDs(ctx context.Context) ([]string, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	records, err := coll.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, r := range records {
		id := getString(r.Metadata, KeyDocumentID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Reset drops and recreates the collection.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.DeleteCollection(ctx, s.name); err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return fmt.Errorf("reset: %w", err)
	}
	s.coll = nil
	coll, err := s.backend.GetOrCreateCollection(ctx, s.name)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.coll = coll
	s.logger.Info("vector collection reset", zap.String("collection", s.name))
	s.flush()
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return 0, err
	}
	return coll.Count(ctx)
}

// Health checks that the backend answers.
func (s *Store) Health(ctx context.Context) error {
	if err := s.backend.Heartbeat(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	return nil
}

// CollectionName returns the collection used by the store.
func (s *Store) CollectionName() string {
	return s.name
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) flush() {
	f, ok := s.backend.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		s.logger.Warn("failed to persist vector index", zap.Error(err))
	}
}
