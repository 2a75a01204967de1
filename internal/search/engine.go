// Package search answers queries against the indexed chunks: ranked retrieval and
// grounded answer generation.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// Retriever returns up to k chunks scoring at least threshold, highest first.
type Retriever interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]*models.SearchResult, error)
}

// Engine runs retrieval and retrieve-then-generate answers.
type Engine struct {
	retriever Retriever
	chat      llm.ChatModel
	config    config.SearchConfig
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSearchConfig overrides the default limit, maximum limit and threshold.
func WithSearchConfig(cfg config.SearchConfig) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// NewEngine returns an engine reading from retriever and answering with chat.
// chat may be nil when only Search is used.
func NewEngine(retriever Retriever, chat llm.ChatModel, opts ...Option) *Engine {
	e := &Engine{
		retriever: retriever,
		chat:      chat,
		config:    config.SearchConfig{DefaultLimit: 5, MaxLimit: 50, DefaultThreshold: 0.5},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the chunks most similar to query.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := processQuery(query, e.config); err != nil {
		return nil, err
	}
	results, err := e.retriever.Search(ctx, query.Query, query.Limit, query.Threshold)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if results == nil {
		results = []*models.SearchResult{}
	}
	e.logger.Debug("search completed",
		zap.String("query", query.Query),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query.Query,
	}, nil
}
