// Package models defines core data structures for documents, chunks, queue items and search results.
package models

import "time"

// Document represents a document handed to the indexing queue.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Source    string                 `json:"source"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// DocumentInput is the caller-supplied part of a document; the queue assigns the ID.
type DocumentInput struct {
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content"`
	Source   string                 `json:"source,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is a bounded span of a document's text, embedded and stored independently.
// ID is derived from DocumentID and Position, so re-chunking is idempotent.
// DocumentMetadata is the caller's free-form document metadata, shared by every chunk.
type Chunk struct {
	ID               string                 `json:"id"`
	DocumentID       string                 `json:"document_id"`
	Title            string                 `json:"title,omitempty"`
	Source           string                 `json:"source,omitempty"`
	Content          string                 `json:"content"`
	Position         int                    `json:"position"`
	TotalChunks      int                    `json:"total_chunks"`
	Metadata         *ChunkMetadata         `json:"metadata,omitempty"`
	DocumentMetadata map[string]interface{} `json:"document_metadata,omitempty"`
	Embedding        []float32              `json:"-"`
}

// ChunkMetadata is the language-model-derived enrichment attached to a chunk.
type ChunkMetadata struct {
	Summary       string          `json:"summary,omitempty"`
	Entities      []Entity        `json:"entities,omitempty"`
	Relationships []Relationship  `json:"relationships,omitempty"`
	Category      string          `json:"category,omitempty"`
	Categories    []CategoryScore `json:"categories,omitempty"`
	Confidence    float64         `json:"confidence"`
	Tags          []string        `json:"tags,omitempty"`
}

// Entity types recognised by the extraction prompts. Other values are kept as-is.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityEquipment    = "equipment"
	EntityLocation     = "location"
)

// Entity is a named thing mentioned in a chunk.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Mentions   int     `json:"mentions"`
	Confidence float64 `json:"confidence"`
}

// Relationship links two entities.
type Relationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// CategoryScore is one intelligence classification with its confidence on a 0-100 scale.
type CategoryScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}
