package vector

import (
	"encoding/json"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

// Metadata keys written for every chunk.
const (
	KeyDocumentID    = "document_id"
	KeyPosition      = "position"
	KeyTotalChunks   = "total_chunks"
	KeyTitle         = "title"
	KeySource        = "source"
	KeySummary       = "summary"
	KeyCategory      = "category"
	KeyCategories    = "categories"
	KeyConfidence    = "confidence"
	KeyEntities      = "entities"
	KeyRelationships = "relationships"
	KeyTags          = "tags"
	KeyEnriched      = "enriched"
)

// Document metadata is stored under prefixed keys: primitive values as-is, anything else
// JSON-encoded.
const (
	DocumentMetaPrefix     = "doc_"
	DocumentMetaJSONPrefix = "docjson_"
)

// FlattenChunk converts a chunk's fields and enrichment into store-compatible metadata.
// Lists and nested values are JSON-encoded strings.
func FlattenChunk(c *models.Chunk) Metadata {
	m := Metadata{
		KeyDocumentID:  c.DocumentID,
		KeyPosition:    c.Position,
		KeyTotalChunks: c.TotalChunks,
		KeyTitle:       c.Title,
		KeySource:      c.Source,
		KeyEnriched:    c.Metadata != nil,
	}
	for k, v := range c.DocumentMetadata {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
			m[DocumentMetaPrefix+k] = v
		case nil:
		default:
			m[DocumentMetaJSONPrefix+k] = encodeJSON(v)
		}
	}
	if c.Metadata == nil {
		return m
	}
	md := c.Metadata
	m[KeySummary] = md.Summary
	m[KeyCategory] = md.Category
	m[KeyConfidence] = md.Confidence
	m[KeyTags] = ""
	if len(md.Tags) > 0 {
		m[KeyTags] = encodeJSON(md.Tags)
	}
	m[KeyEntities] = encodeJSON(md.Entities)
	m[KeyRelationships] = encodeJSON(md.Relationships)
	m[KeyCategories] = encodeJSON(md.Categories)
	return m
}

// UnflattenChunk rebuilds a chunk from a stored record. Malformed JSON fields decode as empty.
func UnflattenChunk(id, document string, m Metadata) *models.Chunk {
	c := &models.Chunk{
		ID:          id,
		Content:     document,
		DocumentID:  getString(m, KeyDocumentID),
		Title:       getString(m, KeyTitle),
		Source:      getString(m, KeySource),
		Position:    getInt(m, KeyPosition),
		TotalChunks: getInt(m, KeyTotalChunks),
	}
	for k, v := range m {
		if name, ok := strings.CutPrefix(k, DocumentMetaJSONPrefix); ok {
			var decoded interface{}
			if s, _ := v.(string); json.Unmarshal([]byte(s), &decoded) == nil {
				setDocumentMeta(c, name, decoded)
			}
		} else if name, ok := strings.CutPrefix(k, DocumentMetaPrefix); ok {
			setDocumentMeta(c, name, v)
		}
	}
	if enriched, _ := m[KeyEnriched].(bool); !enriched {
		return c
	}
	md := &models.ChunkMetadata{
		Summary:  getString(m, KeySummary),
		Category: getString(m, KeyCategory),
	}
	md.Confidence, _ = toFloat(m[KeyConfidence])
	md.Tags = decodeTags(getString(m, KeyTags))
	_ = json.Unmarshal([]byte(getString(m, KeyEntities)), &md.Entities)
	_ = json.Unmarshal([]byte(getString(m, KeyRelationships)), &md.Relationships)
	_ = json.Unmarshal([]byte(getString(m, KeyCategories)), &md.Categories)
	c.Metadata = md
	return c
}

func setDocumentMeta(c *models.Chunk, key string, v interface{}) {
	if c.DocumentMetadata == nil {
		c.DocumentMetadata = make(map[string]interface{})
	}
	c.DocumentMetadata[key] = v
}

// decodeTags reads a JSON list. Index files written before tags were JSON-encoded hold a
// comma-joined string.
func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &tags) == nil {
		if len(tags) == 0 {
			return nil
		}
		return tags
	}
	return strings.Split(s, ",")
}

func encodeJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func getString(m Metadata, key string) string {
	s, _ := m[key].(string)
	return s
}

func getInt(m Metadata, key string) int {
	f, _ := toFloat(m[key])
	return int(f)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
