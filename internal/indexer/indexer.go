package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/enrich"
	"github.com/hyperjump/shirabe/internal/models"
)

// Progress reported by IndexDocument after each stage.
const (
	ProgressChunked  = 30
	ProgressEnriched = 50
	ProgressStored   = 80
	ProgressDone     = 100
)

const defaultEnrichConcurrency = 4

// ProgressFunc receives the progress of a document in [0,100].
type ProgressFunc func(progress int)

// ChunkStore is where indexed chunks end up.
type ChunkStore interface {
	AddChunks(ctx context.Context, chunks []*models.Chunk) error
	DeleteDocument(ctx context.Context, docID string) (int, error)
}

// Enricher derives metadata for a chunk's text.
type Enricher interface {
	Enrich(ctx context.Context, text string) (*enrich.Result, error)
}

// Indexer runs the per-document pipeline: chunk, enrich, embed, store.
type Indexer struct {
	chunker  *Chunker
	embedder embedding.Embedder
	store    ChunkStore
	enricher Enricher

	enrichAll         bool
	enrichConcurrency int
	logger            *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithEnricher enables metadata enrichment.
func WithEnricher(e Enricher) IndexerOption {
	return func(idx *Indexer) { idx.enricher = e }
}

// WithEnrichAllChunks enriches every chunk separately instead of enriching the first
// chunk and copying its metadata to the rest.
func WithEnrichAllChunks(all bool) IndexerOption {
	return func(idx *Indexer) { idx.enrichAll = all }
}

// NewIndexer creates an indexer. Enrichment is off unless WithEnricher is given.
func NewIndexer(chunker *Chunker, embedder embedding.Embedder, store ChunkStore, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		chunker:           chunker,
		embedder:          embedder,
		store:             store,
		enrichConcurrency: defaultEnrichConcurrency,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	return idx
}

// IndexDocument chunks doc, enriches, embeds and stores the chunks. It returns the number of
// chunks stored. Every chunk is embedded before the first write; when writing fails the
// chunks already written are removed again.
func (idx *Indexer) IndexDocument(ctx context.Context, doc *models.Document, progress ProgressFunc) (int, error) {
	if progress == nil {
		progress = func(int) {}
	}

	chunks := idx.chunker.Chunk(doc.ID, Preprocess(doc.Content))
	for _, c := range chunks {
		c.Title = doc.Title
		c.Source = doc.Source
		c.DocumentMetadata = doc.Metadata
	}
	idx.logger.Debug("document chunked", zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	progress(ProgressChunked)

	if idx.enricher != nil {
		if err := idx.enrich(ctx, doc.ID, chunks); err != nil {
			return 0, fmt.Errorf("enrich: %w", err)
		}
	}
	progress(ProgressEnriched)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embed: got %d embeddings for %d chunks", len(vecs), len(chunks))
	}
	for i, c := range chunks {
		c.Embedding = vecs[i]
	}

	if err := idx.store.AddChunks(ctx, chunks); err != nil {
		if n, derr := idx.store.DeleteDocument(context.WithoutCancel(ctx), doc.ID); derr != nil {
			idx.logger.Warn("failed to remove partially stored document",
				zap.String("doc_id", doc.ID), zap.Error(derr))
		} else if n > 0 {
			idx.logger.Debug("removed partially stored document", zap.String("doc_id", doc.ID), zap.Int("chunks", n))
		}
		return 0, fmt.Errorf("store: %w", err)
	}
	progress(ProgressStored)

	idx.logger.Debug("document indexed", zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// DeleteDocument removes the document's chunks from the store.
func (idx *Indexer) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := idx.store.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	idx.logger.Debug("document deleted", zap.String("doc_id", docID), zap.Int("chunks", n))
	return n, nil
}

func (idx *Indexer) enrich(ctx context.Context, docID string, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if !idx.enrichAll {
		md, err := idx.enrichText(ctx, docID, chunks[0].Content)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			m := *md
			c.Metadata = &m
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.enrichConcurrency)
	for _, c := range chunks {
		g.Go(func() error {
			md, err := idx.enrichText(gctx, docID, c.Content)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", c.Position, err)
			}
			c.Metadata = md
			return nil
		})
	}
	return g.Wait()
}

// enrichText tolerates partial failures; it fails only when nothing could be extracted.
func (idx *Indexer) enrichText(ctx context.Context, docID, text string) (*models.ChunkMetadata, error) {
	res, err := idx.enricher.Enrich(ctx, text)
	if err != nil {
		if res == nil || enrich.IsTotalFailure(err) {
			return nil, err
		}
		var ee *enrich.ExtractionError
		if errors.As(err, &ee) {
			missing := make([]string, 0, len(ee.Failures))
			for kind := range ee.Failures {
				missing = append(missing, string(kind))
			}
			idx.logger.Warn("enrichment incomplete",
				zap.String("doc_id", docID), zap.Strings("missing", missing), zap.Error(err))
		} else {
			return nil, err
		}
	}
	return res.ToMetadata(), nil
}
