// Package enrich derives chunk metadata (summary, entities, relationships, classification)
// from a chat model.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind names one sub-extraction.
type Kind string

const (
	KindSummary        Kind = "summary"
	KindEntities       Kind = "entities"
	KindRelationships  Kind = "relationships"
	KindClassification Kind = "classification"
)

var allKinds = []Kind{KindSummary, KindEntities, KindRelationships, KindClassification}

// ExtractionError reports the sub-extractions whose model call failed.
type ExtractionError struct {
	Failures map[Kind]error
}

func (e *ExtractionError) Error() string {
	kinds := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[Kind(k)]))
	}
	return "enrichment failed for " + strings.Join(parts, "; ")
}

func (e *ExtractionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// Failed reports whether kind failed.
func (e *ExtractionError) Failed(kind Kind) bool {
	_, ok := e.Failures[kind]
	return ok
}

// AllFailed reports whether every sub-extraction failed.
func (e *ExtractionError) AllFailed() bool {
	return len(e.Failures) == len(allKinds)
}

// Classification is the category breakdown of a text.
type Classification struct {
	Categories []models.CategoryScore `json:"categories"`
	Tags       []string               `json:"tags"`
}

// Primary returns the highest-confidence category name, or "".
func (c Classification) Primary() string {
	best := -1.0
	name := ""
	for _, cat := range c.Categories {
		if cat.Confidence > best {
			best = cat.Confidence
			name = cat.Name
		}
	}
	return name
}

// Result is the combined enrichment of one text.
type Result struct {
	Summary        string
	Entities       []models.Entity
	Relationships  []models.Relationship
	Classification Classification
	Confidence     float64
}

// ToMetadata converts r into chunk metadata. Tags are the classification tags plus
// the category names, lower-cased and de-duplicated.
func (r *Result) ToMetadata() *models.ChunkMetadata {
	seen := make(map[string]bool)
	var tags []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		tags = append(tags, s)
	}
	for _, t := range r.Classification.Tags {
		add(t)
	}
	for _, c := range r.Classification.Categories {
		add(c.Name)
	}
	return &models.ChunkMetadata{
		Summary:       r.Summary,
		Entities:      r.Entities,
		Relationships: r.Relationships,
		Category:      r.Classification.Primary(),
		Categories:    r.Classification.Categories,
		Confidence:    r.Confidence,
		Tags:          tags,
	}
}

// Enricher runs the four sub-extractions against a chat model.
type Enricher struct {
	chat       llm.ChatModel
	categories []string
	logger     *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

// WithCategories replaces the classification categories offered to the model.
func WithCategories(categories []string) Option {
	return func(e *Enricher) {
		if len(categories) > 0 {
			e.categories = categories
		}
	}
}

// NewEnricher returns an Enricher using chat.
func NewEnricher(chat llm.ChatModel, opts ...Option) *Enricher {
	e := &Enricher{chat: chat, categories: DefaultCategories}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

type entityJSON struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Mentions   int        `json:"mentions"`
	Confidence confidence `json:"confidence"`
}

type relationshipJSON struct {
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Type       string     `json:"type"`
	Confidence confidence `json:"confidence"`
}

type categoryJSON struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type classificationJSON struct {
	Categories []categoryJSON `json:"categories"`
	Tags       []string       `json:"tags"`
}

// Enrich runs all sub-extractions concurrently. Malformed model output yields an empty
// part. Failed model calls are collected into an *ExtractionError returned together
// with the partial result.
func (e *Enricher) Enrich(ctx context.Context, text string) (*Result, error) {
	res := &Result{}
	var (
		mu       sync.Mutex
		failures = make(map[Kind]error)
	)
	fail := func(kind Kind, err error) {
		mu.Lock()
		failures[kind] = err
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		out, err := llm.Complete(ctx, e.chat, summaryPrompt(text), systemPrompt)
		if err != nil {
			fail(KindSummary, err)
			return nil
		}
		res.Summary = cleanSummary(out)
		return nil
	})
	g.Go(func() error {
		out, err := llm.Complete(ctx, e.chat, entitiesPrompt(text), systemPrompt)
		if err != nil {
			fail(KindEntities, err)
			return nil
		}
		res.Entities = e.parseEntities(out)
		return nil
	})
	g.Go(func() error {
		out, err := llm.Complete(ctx, e.chat, relationshipsPrompt(text), systemPrompt)
		if err != nil {
			fail(KindRelationships, err)
			return nil
		}
		res.Relationships = e.parseRelationships(out)
		return nil
	})
	g.Go(func() error {
		out, err := llm.Complete(ctx, e.chat, classificationPrompt(text, e.categories), systemPrompt)
		if err != nil {
			fail(KindClassification, err)
			return nil
		}
		res.Classification = e.parseClassification(out)
		return nil
	})
	_ = g.Wait()

	res.Confidence = Confidence(res.Entities, res.Relationships, res.Classification.Categories)

	if len(failures) > 0 {
		return res, &ExtractionError{Failures: failures}
	}
	return res, nil
}

func (e *Enricher) parseEntities(out string) []models.Entity {
	var raw []entityJSON
	if ExtractJSON(out, &raw).Kind == Empty {
		e.logger.Debug("no entities parsed from model output", zap.Int("len", len(out)))
		return nil
	}
	entities := make([]models.Entity, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		mentions := r.Mentions
		if mentions < 1 {
			mentions = 1
		}
		entities = append(entities, models.Entity{
			Name:       name,
			Type:       strings.ToLower(strings.TrimSpace(r.Type)),
			Mentions:   mentions,
			Confidence: float64(r.Confidence),
		})
	}
	return entities
}

func (e *Enricher) parseRelationships(out string) []models.Relationship {
	var raw []relationshipJSON
	if ExtractJSON(out, &raw).Kind == Empty {
		e.logger.Debug("no relationships parsed from model output", zap.Int("len", len(out)))
		return nil
	}
	rels := make([]models.Relationship, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" {
			continue
		}
		rels = append(rels, models.Relationship{
			Source:     strings.TrimSpace(r.Source),
			Target:     strings.TrimSpace(r.Target),
			Type:       strings.TrimSpace(r.Type),
			Confidence: float64(r.Confidence),
		})
	}
	return rels
}

func (e *Enricher) parseClassification(out string) Classification {
	var raw classificationJSON
	if ExtractJSON(out, &raw).Kind == Empty {
		e.logger.Debug("no classification parsed from model output", zap.Int("len", len(out)))
		return Classification{}
	}
	c := Classification{Tags: raw.Tags}
	for _, cat := range raw.Categories {
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if name == "" {
			continue
		}
		score := cat.Confidence
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		c.Categories = append(c.Categories, models.CategoryScore{Name: name, Confidence: score})
	}
	return c
}

// IsTotalFailure reports whether err says every sub-extraction failed.
func IsTotalFailure(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.AllFailed()
}
