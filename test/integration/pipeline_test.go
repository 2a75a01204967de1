// Package integration runs the indexing pipeline against real on-disk storage.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/indexer"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/vector"
)

const report = "Convoy reached checkpoint north at dawn with fuel for two days."

type stack struct {
	store   *vector.Store
	journal *storage.SQLiteQueueStore
	queue   *indexer.Coordinator
	engine  *search.Engine
	chat    *llm.Mock
}

func openStack(t *testing.T, dir string) *stack {
	t.Helper()
	vb, err := vector.NewMemoryBackend(filepath.Join(dir, "vectors.bin"))
	require.NoError(t, err)
	emb := embedding.NewMockEmbedder(32)
	store := vector.NewStore(vb, emb)

	journal, err := storage.NewSQLiteQueueStore(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)

	opts := indexer.DefaultChunkOptions()
	opts.ChunkSize = 120
	opts.ChunkOverlap = 10
	idx := indexer.NewIndexer(indexer.NewChunker(opts), emb, store)
	queue := indexer.NewCoordinator(idx, indexer.WithJournal(journal), indexer.WithConcurrency(2))

	chat := llm.NewMock(32)
	chat.Default = "The convoy reached checkpoint north at dawn [1]."
	engine := search.NewEngine(store, chat, search.WithSearchConfig(config.SearchConfig{
		DefaultLimit: 5, MaxLimit: 20, DefaultThreshold: 0.1,
	}))
	return &stack{store: store, journal: journal, queue: queue, engine: engine, chat: chat}
}

func (s *stack) close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.queue.Shutdown(ctx))
	require.NoError(t, s.journal.Close())
	require.NoError(t, s.store.Close())
}

func TestIntegration_IndexSearchAnswer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := openStack(t, dir)

	id, err := s.queue.Enqueue(ctx, models.DocumentInput{Title: "Field report 12", Content: report})
	require.NoError(t, err)
	_, err = s.queue.Enqueue(ctx, models.DocumentInput{Title: "Weather", Content: "Heavy rain expected over the southern valley."})
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.queue.Wait(waitCtx))

	item, ok := s.queue.Item(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, 100, item.Progress)

	resp, err := s.engine.Search(ctx, &models.SearchQuery{Query: report})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, id, resp.Results[0].Chunk.DocumentID)
	assert.Equal(t, "Field report 12", resp.Results[0].Chunk.Title)

	answer, err := s.engine.Answer(ctx, &models.AnswerRequest{Query: report})
	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.NotEmpty(t, answer.Sources)
	assert.Equal(t, 1, s.chat.ChatCalls())

	s.close(t)

	// chunks and the queue journal survive a restart
	s = openStack(t, dir)
	defer s.close(t)
	n, err := s.queue.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	item, ok = s.queue.Item(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, item.Status)

	ids, err := s.store.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	resp, err = s.engine.Search(ctx, &models.SearchQuery{Query: report, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, id, resp.Results[0].Chunk.DocumentID)

	deleted, err := s.queue.DeleteDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, ok = s.queue.Item(id)
	assert.False(t, ok)
}
