package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIndexedStore returns a store holding three chunks with pinned vectors. The query
// "fuel levels" scores 1.0 against the first chunk, 0.6 against the second and 0 against the third;
// "nothing relevant" scores at most 0 against all of them.
func newIndexedStore(t *testing.T) *vector.Store {
	t.Helper()
	backend, err := vector.NewMemoryBackend("")
	require.NoError(t, err)
	emb := embedding.NewMockEmbedder(3)
	emb.Set("fuel levels", []float32{1, 0, 0})
	emb.Set("nothing relevant", []float32{0, -1, 0})
	store := vector.NewStore(backend, emb)

	chunks := []*models.Chunk{
		{
			ID: "doc-a_0", DocumentID: "doc-a", Title: "Logistics Report", Content: "Fuel reserves at depot 4 are at 40 percent.",
			Position: 0, TotalChunks: 2, Embedding: []float32{1, 0, 0},
			Metadata: &models.ChunkMetadata{
				Summary:  "Depot fuel reserves are low.",
				Category: "LOGINT",
				Entities: []models.Entity{{Name: "Depot 4", Type: models.EntityLocation, Mentions: 1, Confidence: 0.9}},
			},
		},
		{
			ID: "doc-a_1", DocumentID: "doc-a", Title: "Logistics Report", Content: "Resupply convoy expected Thursday.",
			Position: 1, TotalChunks: 2, Embedding: []float32{0.6, 0.8, 0},
		},
		{
			ID: "doc-b_0", DocumentID: "doc-b", Title: "Weather", Content: "Heavy rain forecast.",
			Position: 0, TotalChunks: 1, Embedding: []float32{0, 0, 1},
		},
	}
	require.NoError(t, store.AddChunks(context.Background(), chunks))
	return store
}

func TestEngine_Search(t *testing.T) {
	engine := NewEngine(newIndexedStore(t), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "  fuel levels ", Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "fuel levels", resp.Query)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "doc-a_0", resp.Results[0].Chunk.ID)
	assert.Equal(t, "doc-a_1", resp.Results[1].Chunk.ID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.6, resp.Results[1].Score, 1e-6)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "Depot fuel reserves are low.", resp.Results[0].Chunk.Metadata.Summary)
}

func TestEngine_SearchLimit(t *testing.T) {
	engine := NewEngine(newIndexedStore(t), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "fuel levels", Limit: 1, Threshold: 0.1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "doc-a_0", resp.Results[0].Chunk.ID)
}

func TestEngine_SearchNoMatches(t *testing.T) {
	engine := NewEngine(newIndexedStore(t), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "nothing relevant"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestEngine_SearchEmptyQuery(t *testing.T) {
	engine := NewEngine(newIndexedStore(t), nil)

	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "   "})
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
}

type failingRetriever struct{ err error }

func (f failingRetriever) Search(context.Context, string, int, float64) ([]*models.SearchResult, error) {
	return nil, f.err
}

func TestEngine_SearchBackendError(t *testing.T) {
	engine := NewEngine(failingRetriever{err: vector.ErrUnavailable}, nil)

	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "fuel levels"})
	assert.ErrorIs(t, err, vector.ErrUnavailable)
}

func TestEngine_AnswerGrounded(t *testing.T) {
	chat := llm.NewMock(8)
	chat.Default = "Depot 4 holds 40 percent of its fuel reserves [1]."
	engine := NewEngine(newIndexedStore(t), chat)

	resp, err := engine.Answer(context.Background(), &models.AnswerRequest{Query: "fuel levels", Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, chat.Default, resp.Answer)
	assert.True(t, resp.Grounded)
	require.Len(t, resp.Sources, 2)
	assert.InDelta(t, 1.0, resp.Sources[0].Score, 1e-6)
	assert.Equal(t, 1, chat.ChatCalls())

	prompts := chat.Prompts()
	require.Len(t, prompts, 1)
	prompt := prompts[0]
	for _, want := range []string{
		"[1] Logistics Report (part 1 of 2)",
		"Summary: Depot fuel reserves are low.",
		"Category: LOGINT",
		"Entities: Depot 4 (location)",
		"Fuel reserves at depot 4 are at 40 percent.",
		"[2] Logistics Report (part 2 of 2)",
		"Resupply convoy expected Thursday.",
		"Question: fuel levels",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "Heavy rain forecast.")
}

func TestEngine_AnswerDeclinesWithoutSources(t *testing.T) {
	chat := llm.NewMock(8)
	chat.Default = "made up"
	engine := NewEngine(newIndexedStore(t), chat)

	resp, err := engine.Answer(context.Background(), &models.AnswerRequest{Query: "nothing relevant"})
	require.NoError(t, err)
	assert.Equal(t, DeclineAnswer, resp.Answer)
	assert.False(t, resp.Grounded)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, chat.ChatCalls())
}

func TestEngine_AnswerModelDeclines(t *testing.T) {
	chat := llm.NewMock(8)
	chat.Default = DeclineAnswer + "\n"
	engine := NewEngine(newIndexedStore(t), chat)

	resp, err := engine.Answer(context.Background(), &models.AnswerRequest{Query: "fuel levels"})
	require.NoError(t, err)
	assert.Equal(t, DeclineAnswer, resp.Answer)
	assert.False(t, resp.Grounded)
	assert.NotEmpty(t, resp.Sources)
}

func TestEngine_AnswerChatError(t *testing.T) {
	chat := llm.NewMock(8)
	chat.ChatErr = func(string) error { return llm.ErrUnavailable }
	engine := NewEngine(newIndexedStore(t), chat)

	_, err := engine.Answer(context.Background(), &models.AnswerRequest{Query: "fuel levels"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrUnavailable))
	assert.True(t, strings.HasPrefix(err.Error(), "answer: generate"))
}

func TestEngine_AnswerWithoutChatModel(t *testing.T) {
	engine := NewEngine(newIndexedStore(t), nil)

	_, err := engine.Answer(context.Background(), &models.AnswerRequest{Query: "fuel levels"})
	assert.Error(t, err)
}

func TestProcessQuery(t *testing.T) {
	cfg := config.SearchConfig{DefaultLimit: 7, MaxLimit: 20, DefaultThreshold: 0.3}
	tests := []struct {
		name          string
		in            models.SearchQuery
		wantLimit     int
		wantThreshold float64
	}{
		{"defaults", models.SearchQuery{Query: "q"}, 7, 0.3},
		{"explicit", models.SearchQuery{Query: "q", Limit: 3, Threshold: 0.9}, 3, 0.9},
		{"capped limit", models.SearchQuery{Query: "q", Limit: 500}, 20, 0.3},
		{"clamped threshold", models.SearchQuery{Query: "q", Threshold: 4}, 7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.in
			require.NoError(t, processQuery(&q, cfg))
			assert.Equal(t, tt.wantLimit, q.Limit)
			assert.Equal(t, tt.wantThreshold, q.Threshold)
		})
	}
}
