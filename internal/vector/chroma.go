package vector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	chroma "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"
	"go.uber.org/zap"
)

var _ Backend = (*ChromaBackend)(nil)

// ChromaBackend talks to a Chroma server through chroma-go.
type ChromaBackend struct {
	client *chroma.Client
	logger *zap.Logger
}

// ChromaOption configures a ChromaBackend.
type ChromaOption func(*ChromaBackend)

// WithChromaLogger sets the logger.
func WithChromaLogger(logger *zap.Logger) ChromaOption {
	return func(b *ChromaBackend) {
		b.logger = logger
	}
}

// NewChromaBackend returns a backend for the server at baseURL (e.g. http://localhost:8000).
func NewChromaBackend(baseURL string, opts ...ChromaOption) (*ChromaBackend, error) {
	client, err := chroma.NewClient(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	b := &ChromaBackend{client: client}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

func (b *ChromaBackend) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	// Embeddings are always computed by the caller, so no embedding function is attached.
	coll, err := b.client.CreateCollection(ctx, name, nil, true, nil, types.COSINE)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, chromaError(ctx, err))
	}
	b.logger.Debug("chroma collection ready", zap.String("name", coll.Name), zap.String("id", coll.ID))
	return &ChromaCollection{coll: coll}, nil
}

func (b *ChromaBackend) ListCollections(ctx context.Context) ([]string, error) {
	colls, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", chromaError(ctx, err))
	}
	names := make([]string, 0, len(colls))
	for _, c := range colls {
		names = append(names, c.Name)
	}
	return names, nil
}

func (b *ChromaBackend) DeleteCollection(ctx context.Context, name string) error {
	if _, err := b.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, chromaError(ctx, err))
	}
	return nil
}

func (b *ChromaBackend) Heartbeat(ctx context.Context) error {
	if _, err := b.client.Heartbeat(ctx); err != nil {
		return chromaError(ctx, err)
	}
	return nil
}

func (b *ChromaBackend) Close() error {
	return nil
}

// chromaError maps client failures onto ErrUnavailable and ErrCollectionNotFound.
func chromaError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	msg := err.Error()
	var withBody interface{ Body() []byte }
	if errors.As(err, &withBody) {
		if body := strings.TrimSpace(string(withBody.Body())); body != "" {
			msg = msg + ": " + body
		}
	}
	switch {
	case strings.Contains(msg, "does not exist") || strings.HasPrefix(msg, "404"):
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, msg)
	case strings.HasPrefix(msg, "5"):
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return errors.New(msg)
	}
}

// ChromaCollection is a collection on a Chroma server.
type ChromaCollection struct {
	coll *chroma.Collection
}

func (c *ChromaCollection) Name() string { return c.coll.Name }

func (c *ChromaCollection) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	embeddings := make([]*types.Embedding, len(records))
	metadatas := make([]map[string]interface{}, len(records))
	documents := make([]string, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		embeddings[i] = types.NewEmbeddingFromFloat32(r.Embedding)
		metadatas[i] = r.Metadata
		documents[i] = r.Document
		ids[i] = r.ID
	}
	if _, err := c.coll.Upsert(ctx, embeddings, metadatas, documents, ids); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), chromaError(ctx, err))
	}
	return nil
}

func (c *ChromaCollection) Query(ctx context.Context, embedding []float32, n int) ([]Match, error) {
	res, err := c.coll.QueryWithOptions(ctx,
		types.WithQueryEmbeddings([]*types.Embedding{types.NewEmbeddingFromFloat32(embedding)}),
		types.WithNResults(int32(n)),
		types.WithInclude(types.IDocuments, types.IMetadatas, types.IDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", chromaError(ctx, err))
	}
	if res == nil || len(res.Ids) == 0 {
		return nil, nil
	}
	matches := make([]Match, len(res.Ids[0]))
	for i, id := range res.Ids[0] {
		m := Match{ID: id}
		if len(res.Documents) > 0 && i < len(res.Documents[0]) {
			m.Document = res.Documents[0][i]
		}
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			m.Metadata = res.Metadatas[0][i]
		}
		if len(res.Distances) > 0 && i < len(res.Distances[0]) {
			m.Distance = float64(res.Distances[0][i])
		}
		matches[i] = m
	}
	return matches, nil
}

func (c *ChromaCollection) Get(ctx context.Context, where Where) ([]Record, error) {
	res, err := c.coll.Get(ctx, chromaWhere(where), nil, nil, []types.QueryEnum{types.IDocuments, types.IMetadatas})
	if err != nil {
		return nil, fmt.Errorf("get: %w", chromaError(ctx, err))
	}
	records := make([]Record, len(res.Ids))
	for i, id := range res.Ids {
		r := Record{ID: id}
		if i < len(res.Documents) {
			r.Document = res.Documents[i]
		}
		if i < len(res.Metadatas) {
			r.Metadata = res.Metadatas[i]
		}
		records[i] = r
	}
	return records, nil
}

func (c *ChromaCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.coll.Delete(ctx, ids, nil, nil); err != nil {
		return fmt.Errorf("delete %d records: %w", len(ids), chromaError(ctx, err))
	}
	return nil
}

func (c *ChromaCollection) Count(ctx context.Context) (int, error) {
	n, err := c.coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", chromaError(ctx, err))
	}
	return int(n), nil
}

// chromaWhere converts an equality filter; several keys are combined with $and.
func chromaWhere(where Where) map[string]interface{} {
	switch len(where) {
	case 0:
		return nil
	case 1:
		return map[string]interface{}(where)
	}
	clauses := make([]map[string]interface{}, 0, len(where))
	for k, v := range where {
		clauses = append(clauses, map[string]interface{}{k: v})
	}
	return map[string]interface{}{"$and": clauses}
}
