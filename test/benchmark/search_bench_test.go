package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/indexer"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
)

func BenchmarkChunker(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "## Section %d\n\nPatrol %d reported the road clear at %02d:00. Fuel and water were resupplied.\n\n", i, i, i%24)
	}
	text := sb.String()
	c := indexer.NewChunker(indexer.DefaultChunkOptions())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk("doc", text)
	}
}

func BenchmarkStoreSearch(b *testing.B) {
	ctx := context.Background()
	backend, _ := vector.NewMemoryBackend("")
	emb := embedding.NewMockEmbedder(384)
	store := vector.NewStore(backend, emb)
	chunks := make([]*models.Chunk, 1000)
	for i := range chunks {
		chunks[i] = &models.Chunk{
			ID:          indexer.ChunkID(fmt.Sprintf("doc-%d", i/4), i%4),
			DocumentID:  fmt.Sprintf("doc-%d", i/4),
			Content:     fmt.Sprintf("checkpoint %d status report with supply level %d", i, i%7),
			Position:    i % 4,
			TotalChunks: 4,
		}
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Search(ctx, "supply level at checkpoint", 10, 0)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
