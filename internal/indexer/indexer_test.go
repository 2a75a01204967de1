package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/enrich"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
)

func scriptedChat() *llm.Mock {
	m := llm.NewMock(16)
	m.Responses["concise summary"] = "Convoy reached the checkpoint."
	m.Responses["named entities"] = `[{"name": "Delta checkpoint", "type": "location", "mentions": 2, "confidence": "high"}]`
	m.Responses["relationships between"] = `[{"source": "Convoy", "target": "Delta checkpoint", "type": "located_at", "confidence": "medium"}]`
	m.Responses["Classify the text"] = `{"categories": [{"name": "logistics", "confidence": 80}], "tags": ["convoy"]}`
	return m
}

func newTestStore(t *testing.T) (*vector.Store, *embedding.MockEmbedder) {
	t.Helper()
	b, err := vector.NewMemoryBackend("")
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(16)
	return vector.NewStore(b, emb), emb
}

func testDocument(id, content string) *models.Document {
	return &models.Document{ID: id, Title: "Field Report", Content: content, Source: "upload"}
}

func TestIndexDocument_SingleChunkWithMetadata(t *testing.T) {
	store, emb := newTestStore(t)
	chat := scriptedChat()
	idx := NewIndexer(NewChunker(DefaultChunkOptions()), emb, store, WithEnricher(enrich.NewEnricher(chat)))
	ctx := context.Background()

	var progress []int
	n, err := idx.IndexDocument(ctx, testDocument("doc1", "Convoy reached Delta checkpoint at 0600."), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 chunk, got %d", n)
	}
	if want := []int{ProgressChunked, ProgressEnriched, ProgressStored}; !equalInts(progress, want) {
		t.Errorf("progress = %v, want %v", progress, want)
	}

	chunks, err := store.GetChunksForDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].TotalChunks != 1 || chunks[0].Title != "Field Report" || chunks[0].Source != "upload" {
		t.Fatalf("unexpected stored chunks: %+v", chunks)
	}
	md := chunks[0].Metadata
	if md == nil || md.Summary != "Convoy reached the checkpoint." || md.Category != "logistics" {
		t.Errorf("metadata = %+v", md)
	}
	if len(md.Entities) != 1 || md.Entities[0].Name != "Delta checkpoint" {
		t.Errorf("entities = %+v", md.Entities)
	}
}

func TestIndexDocument_FirstChunkMetadataPropagates(t *testing.T) {
	store, emb := newTestStore(t)
	chat := scriptedChat()
	chunker := NewChunker(ChunkOptions{ChunkSize: 100, RespectParagraphs: true})
	idx := NewIndexer(chunker, emb, store, WithEnricher(enrich.NewEnricher(chat)))
	ctx := context.Background()

	content := strings.Join([]string{words(90), words(90), words(90)}, "\n\n")
	n, err := idx.IndexDocument(ctx, testDocument("doc2", content), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 chunks, got %d", n)
	}
	if chat.ChatCalls() != 4 {
		t.Errorf("expected one enrichment (4 calls), got %d calls", chat.ChatCalls())
	}
	chunks, _ := store.GetChunksForDocument(ctx, "doc2")
	for _, c := range chunks {
		if c.Metadata == nil || c.Metadata.Summary != "Convoy reached the checkpoint." {
			t.Errorf("chunk %d missing propagated metadata", c.Position)
		}
	}
}

func TestIndexDocument_EnrichAllChunks(t *testing.T) {
	store, emb := newTestStore(t)
	chat := scriptedChat()
	chunker := NewChunker(ChunkOptions{ChunkSize: 100, RespectParagraphs: true})
	idx := NewIndexer(chunker, emb, store, WithEnricher(enrich.NewEnricher(chat)), WithEnrichAllChunks(true))

	content := strings.Join([]string{words(90), words(90), words(90)}, "\n\n")
	if _, err := idx.IndexDocument(context.Background(), testDocument("doc3", content), nil); err != nil {
		t.Fatal(err)
	}
	if chat.ChatCalls() != 12 {
		t.Errorf("expected 12 chat calls, got %d", chat.ChatCalls())
	}
}

func TestIndexDocument_PartialEnrichmentProceeds(t *testing.T) {
	store, emb := newTestStore(t)
	chat := scriptedChat()
	chat.ChatErr = func(prompt string) error {
		if strings.Contains(prompt, "named entities") {
			return llm.ErrUnavailable
		}
		return nil
	}
	idx := NewIndexer(NewChunker(DefaultChunkOptions()), emb, store, WithEnricher(enrich.NewEnricher(chat)))
	ctx := context.Background()

	if _, err := idx.IndexDocument(ctx, testDocument("doc4", "Short report."), nil); err != nil {
		t.Fatalf("partial enrichment should not fail the document: %v", err)
	}
	chunks, _ := store.GetChunksForDocument(ctx, "doc4")
	if len(chunks) != 1 || chunks[0].Metadata == nil {
		t.Fatalf("chunks = %+v", chunks)
	}
	if chunks[0].Metadata.Summary == "" || len(chunks[0].Metadata.Entities) != 0 {
		t.Errorf("metadata = %+v", chunks[0].Metadata)
	}
}

func TestIndexDocument_TotalEnrichmentFailure(t *testing.T) {
	store, emb := newTestStore(t)
	chat := scriptedChat()
	chat.ChatErr = func(string) error { return llm.ErrUnavailable }
	idx := NewIndexer(NewChunker(DefaultChunkOptions()), emb, store, WithEnricher(enrich.NewEnricher(chat)))

	_, err := idx.IndexDocument(context.Background(), testDocument("doc5", "Short report."), nil)
	if err == nil || !strings.HasPrefix(err.Error(), "enrich:") {
		t.Fatalf("expected enrich error, got %v", err)
	}
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("error should wrap the backend failure: %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("nothing should be stored, found %d", n)
	}
}

func TestIndexDocument_EmbedFailureStoresNothing(t *testing.T) {
	store, emb := newTestStore(t)
	emb.FailOn = func(text string) error {
		if strings.Contains(text, "poison") {
			return errors.New("embedding backend down")
		}
		return nil
	}
	chunker := NewChunker(ChunkOptions{ChunkSize: 100, RespectParagraphs: true})
	idx := NewIndexer(chunker, emb, store)

	content := words(90) + "\n\npoison pill\n\n" + words(90)
	_, err := idx.IndexDocument(context.Background(), testDocument("doc6", content), nil)
	if err == nil || !strings.HasPrefix(err.Error(), "embed:") {
		t.Fatalf("expected embed error, got %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("no chunk may be stored after an embedding failure, found %d", n)
	}
}

type failingStore struct {
	mu      sync.Mutex
	deleted []string
}

func (f *failingStore) AddChunks(ctx context.Context, chunks []*models.Chunk) error {
	return errors.New("upsert rejected")
}

func (f *failingStore) DeleteDocument(ctx context.Context, docID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, docID)
	return 1, nil
}

func TestIndexDocument_StoreFailureRemovesPartialWrite(t *testing.T) {
	store := &failingStore{}
	idx := NewIndexer(NewChunker(DefaultChunkOptions()), embedding.NewMockEmbedder(8), store)

	_, err := idx.IndexDocument(context.Background(), testDocument("doc7", "Short report."), nil)
	if err == nil || !strings.HasPrefix(err.Error(), "store:") {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "doc7" {
		t.Errorf("partial write should be removed, deleted=%v", store.deleted)
	}
}

func TestIndexer_DeleteDocument(t *testing.T) {
	store, emb := newTestStore(t)
	idx := NewIndexer(NewChunker(ChunkOptions{ChunkSize: 100, RespectParagraphs: true}), emb, store)
	ctx := context.Background()

	content := words(90) + "\n\n" + words(90)
	if _, err := idx.IndexDocument(ctx, testDocument("doc8", content), nil); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DeleteDocument(ctx, "doc8")
	if err != nil || n != 2 {
		t.Fatalf("DeleteDocument = %d, %v", n, err)
	}
	n, err = idx.DeleteDocument(ctx, "doc8")
	if err != nil || n != 0 {
		t.Errorf("second delete = %d, %v", n, err)
	}
}

func TestIndexDocument_DocumentMetadataIsStored(t *testing.T) {
	store, emb := newTestStore(t)
	idx := NewIndexer(NewChunker(ChunkOptions{ChunkSize: 100, RespectParagraphs: true}), emb, store)
	ctx := context.Background()

	doc := testDocument("doc9", words(90)+"\n\n"+words(90))
	doc.Metadata = map[string]interface{}{"filename": "report.txt", "sections": []string{"north", "south"}}
	if _, err := idx.IndexDocument(ctx, doc, nil); err != nil {
		t.Fatal(err)
	}
	chunks, err := store.GetChunksForDocument(ctx, "doc9")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if got := c.DocumentMetadata["filename"]; got != "report.txt" {
			t.Errorf("chunk %d filename = %v", c.Position, got)
		}
		sections, ok := c.DocumentMetadata["sections"].([]interface{})
		if !ok || len(sections) != 2 || sections[0] != "north" {
			t.Errorf("chunk %d sections = %#v", c.Position, c.DocumentMetadata["sections"])
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
