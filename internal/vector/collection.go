// Package vector stores chunks in a collection-oriented vector store and answers
// nearest-neighbour queries over them.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports that the vector store could not be reached.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrCollectionNotFound is returned when a named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Metadata holds store-compatible values only: string, bool and numbers.
type Metadata map[string]interface{}

// Where is an equality filter over metadata keys. A nil Where matches everything.
type Where map[string]interface{}

// Record is one stored vector with its text and metadata.
type Record struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  Metadata
}

// Match is a query hit. Distance is the cosine distance (0 identical, 2 opposite).
type Match struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float64
}

// Collection is a named set of records.
type Collection interface {
	Name() string
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to n records nearest to embedding, closest first.
	Query(ctx context.Context, embedding []float32, n int) ([]Match, error)
	// Get returns records matching where, without embeddings.
	Get(ctx context.Context, where Where) ([]Record, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
}

// Backend manages collections.
type Backend interface {
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, name string) error
	Heartbeat(ctx context.Context) error
	Close() error
}

// Flusher is implemented by backends that buffer writes locally.
type Flusher interface {
	Flush() error
}
