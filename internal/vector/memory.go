package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/shirabe/internal/embedding"
)

const memoryFileVersion = 1

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-process vector store using brute-force cosine search.
// When path is set, Flush writes every collection to it and NewMemoryBackend reads it back.
type MemoryBackend struct {
	path        string
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

// NewMemoryBackend returns a backend persisted at path, or unpersisted when path is empty.
// A missing file is not an error.
func NewMemoryBackend(path string) (*MemoryBackend, error) {
	b := &MemoryBackend{path: path, collections: make(map[string]*MemoryCollection)}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MemoryBackend) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[name]; ok {
		return c, nil
	}
	c := newMemoryCollection(name)
	b.collections[name] = c
	return c, nil
}

func (b *MemoryBackend) ListCollections(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.collections))
	for name := range b.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *MemoryBackend) DeleteCollection(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	delete(b.collections, name)
	return nil
}

// Heartbeat always succeeds.
func (b *MemoryBackend) Heartbeat(ctx context.Context) error {
	return nil
}

// Close flushes to disk.
func (b *MemoryBackend) Close() error {
	return b.Flush()
}

// MemoryCollection is a collection held in memory.
type MemoryCollection struct {
	name    string
	mu      sync.RWMutex
	ids     []string
	pos     map[string]int
	vectors [][]float32
	docs    []string
	metas   []Metadata
}

func newMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{name: name, pos: make(map[string]int)}
}

func (c *MemoryCollection) Name() string { return c.name }

// Upsert replaces records with existing IDs and appends new ones.
func (c *MemoryCollection) Upsert(ctx context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id")
		}
		if len(c.vectors) > 0 && len(r.Embedding) != len(c.vectors[0]) {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Embedding), len(c.vectors[0]))
		}
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		meta := make(Metadata, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		if i, ok := c.pos[r.ID]; ok {
			c.vectors[i], c.docs[i], c.metas[i] = vec, r.Document, meta
			continue
		}
		c.pos[r.ID] = len(c.ids)
		c.ids = append(c.ids, r.ID)
		c.vectors = append(c.vectors, vec)
		c.docs = append(c.docs, r.Document)
		c.metas = append(c.metas, meta)
	}
	return nil
}

// Query scores every record by cosine distance.
func (c *MemoryCollection) Query(ctx context.Context, query []float32, n int) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || len(c.ids) == 0 {
		return nil, nil
	}
	if len(query) != len(c.vectors[0]) {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), len(c.vectors[0]))
	}
	matches := make([]Match, len(c.ids))
	for i, vec := range c.vectors {
		matches[i] = Match{
			ID:       c.ids[i],
			Document: c.docs[i],
			Metadata: c.metas[i],
			Distance: 1 - embedding.CosineSimilarity(query, vec),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if n > len(matches) {
		n = len(matches)
	}
	return matches[:n], nil
}

func (c *MemoryCollection) Get(ctx context.Context, where Where) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Record
	for i, id := range c.ids {
		if !matchesWhere(c.metas[i], where) {
			continue
		}
		out = append(out, Record{ID: id, Document: c.docs[i], Metadata: c.metas[i]})
	}
	return out, nil
}

// Delete removes records by ID; unknown IDs are ignored.
func (c *MemoryCollection) Delete(ctx context.Context, ids []string) error {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := 0
	for i, id := range c.ids {
		if remove[id] {
			delete(c.pos, id)
			continue
		}
		c.ids[keep], c.vectors[keep], c.docs[keep], c.metas[keep] = id, c.vectors[i], c.docs[i], c.metas[i]
		c.pos[id] = keep
		keep++
	}
	c.ids, c.vectors, c.docs, c.metas = c.ids[:keep], c.vectors[:keep], c.docs[:keep], c.metas[:keep]
	return nil
}

func (c *MemoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids), nil
}

func matchesWhere(meta Metadata, where Where) bool {
	for k, want := range where {
		got, ok := meta[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

// Flush writes all collections to the backend path. Format: version, collection count, then per
// collection its name and records (id, dims, vector, document, metadata JSON), all length-prefixed
// little-endian.
func (b *MemoryBackend) Flush() error {
	if b.path == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := b.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := b.write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, b.path)
}

func (b *MemoryBackend) write(w io.Writer) error {
	names := make([]string, 0, len(b.collections))
	for name := range b.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeUint32(w, memoryFileVersion); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		c := b.collections[name]
		c.mu.RLock()
		err := c.write(w)
		c.mu.RUnlock()
		if err != nil {
			return fmt.Errorf("write collection %s: %w", name, err)
		}
	}
	return nil
}

func (c *MemoryCollection) write(w io.Writer) error {
	if err := writeBytes(w, []byte(c.name)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(c.ids))); err != nil {
		return err
	}
	for i, id := range c.ids {
		meta, err := json.Marshal(c.metas[i])
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if err := writeBytes(w, []byte(id)); err != nil {
			return err
		}
		if err := writeBytes(w, float32SliceToBytes(c.vectors[i])); err != nil {
			return err
		}
		if err := writeBytes(w, []byte(c.docs[i])); err != nil {
			return err
		}
		if err := writeBytes(w, meta); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBackend) load() error {
	if b.path == "" {
		return nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	version, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != memoryFileVersion {
		return fmt.Errorf("unsupported index file version %d", version)
	}
	n, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read collection count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		c, err := readCollection(r)
		if err != nil {
			return fmt.Errorf("read collection: %w", err)
		}
		b.collections[c.name] = c
	}
	return nil
}

func readCollection(r io.Reader) (*MemoryCollection, error) {
	name, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	c := newMemoryCollection(string(name))
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		id, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		vec, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		doc, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		rawMeta, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		var meta Metadata
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		c.pos[string(id)] = len(c.ids)
		c.ids = append(c.ids, string(id))
		c.vectors = append(c.vectors, bytesToFloat32Slice(vec))
		c.docs = append(c.docs, string(doc))
		c.metas = append(c.metas, meta)
	}
	return c, nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
