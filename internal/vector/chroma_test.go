package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChroma serves the subset of the Chroma v1 REST API that chroma-go calls.
type fakeChroma struct {
	mu      sync.Mutex
	created map[string]string // name -> id
	coll    *MemoryCollection
}

func newFakeChroma(t *testing.T) *httptest.Server {
	t.Helper()
	f := &fakeChroma{created: map[string]string{}, coll: newMemoryCollection("documents")}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeChroma) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx := r.Context()
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case path == "/heartbeat":
		_, _ = w.Write([]byte(`{"nanosecond heartbeat": 1}`))
	case path == "/version":
		_, _ = w.Write([]byte(`"0.5.0"`))
	case path == "/pre-flight-checks":
		_, _ = w.Write([]byte(`{"max_batch_size": 1000}`))
	case strings.HasPrefix(path, "/tenants/"):
		name := path[strings.LastIndex(path, "/")+1:]
		_ = json.NewEncoder(w).Encode(map[string]string{"id": name, "name": name, "tenant": "default_tenant"})
	case path == "/collections" && r.Method == http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			GetOrCreate bool   `json:"get_or_create"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := f.created[req.Name]; !ok {
			f.created[req.Name] = "id-" + req.Name
		}
		_ = json.NewEncoder(w).Encode(collectionJSON(f.created[req.Name], req.Name))
	case path == "/collections" && r.Method == http.MethodGet:
		out := []map[string]interface{}{}
		for name, id := range f.created {
			out = append(out, collectionJSON(id, name))
		}
		_ = json.NewEncoder(w).Encode(out)
	case strings.HasPrefix(path, "/collections/") && r.Method == http.MethodDelete:
		name := strings.TrimPrefix(path, "/collections/")
		if _, ok := f.created[name]; !ok {
			http.Error(w, `{"error":"Collection `+name+` does not exist."}`, http.StatusBadRequest)
			return
		}
		delete(f.created, name)
		f.coll = newMemoryCollection(name)
		_, _ = w.Write([]byte(`null`))
	case strings.HasSuffix(path, "/upsert"):
		var req struct {
			IDs        []string    `json:"ids"`
			Embeddings [][]float32 `json:"embeddings"`
			Metadatas  []Metadata  `json:"metadatas"`
			Documents  []string    `json:"documents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		recs := make([]Record, len(req.IDs))
		for i := range req.IDs {
			recs[i] = Record{ID: req.IDs[i], Embedding: req.Embeddings[i], Metadata: req.Metadatas[i], Document: req.Documents[i]}
		}
		_ = f.coll.Upsert(ctx, recs)
		_, _ = w.Write([]byte(`true`))
	case strings.HasSuffix(path, "/query"):
		var req struct {
			QueryEmbeddings [][]float32 `json:"query_embeddings"`
			NResults        int         `json:"n_results"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		matches, _ := f.coll.Query(ctx, req.QueryEmbeddings[0], req.NResults)
		ids, docs, metas, dists := []string{}, []string{}, []Metadata{}, []float64{}
		for _, m := range matches {
			ids = append(ids, m.ID)
			docs = append(docs, m.Document)
			metas = append(metas, m.Metadata)
			dists = append(dists, m.Distance)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":        [][]string{ids},
			"documents":  [][]string{docs},
			"metadatas":  [][]Metadata{metas},
			"distances":  [][]float64{dists},
			"embeddings": nil,
		})
	case strings.HasSuffix(path, "/get"):
		var req struct {
			Where map[string]interface{} `json:"where"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		recs, _ := f.coll.Get(ctx, Where(req.Where))
		ids, docs, metas := []string{}, []string{}, []Metadata{}
		for _, rec := range recs {
			ids = append(ids, rec.ID)
			docs = append(docs, rec.Document)
			metas = append(metas, rec.Metadata)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":        ids,
			"documents":  docs,
			"metadatas":  metas,
			"embeddings": nil,
		})
	case strings.HasSuffix(path, "/delete"):
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = f.coll.Delete(ctx, req.IDs)
		_ = json.NewEncoder(w).Encode(req.IDs)
	case strings.HasSuffix(path, "/count"):
		n, _ := f.coll.Count(ctx)
		_ = json.NewEncoder(w).Encode(n)
	default:
		http.NotFound(w, r)
	}
}

func collectionJSON(id, name string) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"name":     name,
		"metadata": map[string]interface{}{"hnsw:space": "cosine"},
		"tenant":   "default_tenant",
		"database": "default_database",
	}
}

func newChroma(t *testing.T, url string) *ChromaBackend {
	t.Helper()
	b, err := NewChromaBackend(url)
	require.NoError(t, err)
	return b
}

func TestChromaBackend_StoreRoundTrip(t *testing.T) {
	srv := newFakeChroma(t)
	s := NewStore(newChroma(t, srv.URL), embedding.NewMockEmbedder(16))
	ctx := context.Background()

	require.NoError(t, s.Health(ctx))
	require.NoError(t, s.AddChunks(ctx, makeChunks("doc", "convoy left the depot", "patrol reached the bridge")))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := s.Search(ctx, "patrol reached the bridge", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc_1", results[0].Chunk.ID)
	assert.Equal(t, 1, results[0].Chunk.Position)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	chunks, err := s.GetChunksForDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "convoy left the depot", chunks[0].Content)

	removed, err := s.DeleteDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, s.Reset(ctx))
	names, err := newChroma(t, srv.URL).ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"documents"}, names)
}

func TestChromaBackend_deleteMissingCollection(t *testing.T) {
	srv := newFakeChroma(t)
	err := newChroma(t, srv.URL).DeleteCollection(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestChromaBackend_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newChroma(t, url).Heartbeat(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChromaWhere(t *testing.T) {
	assert.Nil(t, chromaWhere(nil))
	assert.Equal(t, map[string]interface{}{"document_id": "x"}, chromaWhere(Where{"document_id": "x"}))
	multi := chromaWhere(Where{"a": 1, "b": "two"})
	clauses, ok := multi["$and"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, clauses, 2)
}
