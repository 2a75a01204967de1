package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryCollection_UpsertQuery(t *testing.T) {
	b, err := NewMemoryBackend("")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	ctx := context.Background()
	coll, _ := b.GetOrCreateCollection(ctx, "docs")

	records := []Record{
		{ID: "a", Embedding: []float32{1, 0, 0}, Document: "alpha"},
		{ID: "b", Embedding: []float32{0.9, 0.1, 0}, Document: "bravo"},
		{ID: "c", Embedding: []float32{0, 1, 0}, Document: "charlie"},
	}
	if err := coll.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	if n, _ := coll.Count(ctx); n != 3 {
		t.Errorf("Count=%d", n)
	}

	matches, err := coll.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" || matches[0].Distance > 1e-6 {
		t.Errorf("top match should be a at distance 0, got %s at %f", matches[0].ID, matches[0].Distance)
	}
	if matches[1].ID != "b" {
		t.Errorf("second match should be b, got %s", matches[1].ID)
	}

	// upsert replaces in place
	if err := coll.Upsert(ctx, []Record{{ID: "a", Embedding: []float32{0, 0, 1}, Document: "alpha v2"}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := coll.Count(ctx); n != 3 {
		t.Errorf("Count after replace=%d", n)
	}
	if err := coll.Upsert(ctx, []Record{{ID: "d", Embedding: []float32{1, 0}}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryCollection_GetDelete(t *testing.T) {
	b, _ := NewMemoryBackend("")
	ctx := context.Background()
	coll, _ := b.GetOrCreateCollection(ctx, "docs")
	_ = coll.Upsert(ctx, []Record{
		{ID: "x_0", Embedding: []float32{1, 0}, Metadata: Metadata{KeyDocumentID: "x", KeyPosition: 0}},
		{ID: "x_1", Embedding: []float32{0, 1}, Metadata: Metadata{KeyDocumentID: "x", KeyPosition: 1}},
		{ID: "y_0", Embedding: []float32{1, 1}, Metadata: Metadata{KeyDocumentID: "y", KeyPosition: 0}},
	})

	got, _ := coll.Get(ctx, Where{KeyDocumentID: "x"})
	if len(got) != 2 {
		t.Fatalf("expected 2 records for x, got %d", len(got))
	}
	got, _ = coll.Get(ctx, Where{KeyPosition: 1.0})
	if len(got) != 1 || got[0].ID != "x_1" {
		t.Errorf("numeric where should compare across number types, got %+v", got)
	}

	if err := coll.Delete(ctx, []string{"x_0", "missing"}); err != nil {
		t.Fatal(err)
	}
	all, _ := coll.Get(ctx, nil)
	if len(all) != 2 {
		t.Errorf("expected 2 records after delete, got %d", len(all))
	}
	// index stays consistent after compaction
	_ = coll.Upsert(ctx, []Record{{ID: "y_0", Embedding: []float32{0, 1}, Document: "updated"}})
	got, _ = coll.Get(ctx, nil)
	for _, r := range got {
		if r.ID == "y_0" && r.Document != "updated" {
			t.Errorf("upsert after delete updated the wrong slot")
		}
	}
}

func TestMemoryBackend_FlushAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "vectors.bin")
	ctx := context.Background()

	b, err := NewMemoryBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	coll, _ := b.GetOrCreateCollection(ctx, "docs")
	_ = coll.Upsert(ctx, []Record{
		{ID: "d_0", Embedding: []float32{0.6, 0.8}, Document: "hello", Metadata: Metadata{KeyDocumentID: "d", KeyPosition: 0, KeyEnriched: false}},
	})
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	loaded, err := NewMemoryBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	names, _ := loaded.ListCollections(ctx)
	if len(names) != 1 || names[0] != "docs" {
		t.Fatalf("collections = %v", names)
	}
	lc, _ := loaded.GetOrCreateCollection(ctx, "docs")
	recs, _ := lc.Get(ctx, Where{KeyDocumentID: "d"})
	if len(recs) != 1 || recs[0].Document != "hello" {
		t.Fatalf("records = %+v", recs)
	}
	matches, _ := lc.Query(ctx, []float32{0.6, 0.8}, 1)
	if len(matches) != 1 || matches[0].Distance > 1e-6 {
		t.Errorf("vector did not survive round trip: %+v", matches)
	}
}

func TestMemoryBackend_DeleteCollection(t *testing.T) {
	b, _ := NewMemoryBackend("")
	ctx := context.Background()
	_, _ = b.GetOrCreateCollection(ctx, "docs")
	if err := b.DeleteCollection(ctx, "docs"); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteCollection(ctx, "docs"); err == nil {
		t.Error("expected not-found error")
	}
}
