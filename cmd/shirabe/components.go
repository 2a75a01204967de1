package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/enrich"
	"github.com/hyperjump/shirabe/internal/extract"
	"github.com/hyperjump/shirabe/internal/indexer"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/vector"
)

const shutdownTimeout = 30 * time.Second

// Components holds initialized services.
type Components struct {
	LLM         llm.Backend
	Embedder    *embedding.BackendEmbedder
	Store       *vector.Store
	Journal     storage.QueueStore
	Coordinator *indexer.Coordinator
	Engine      *search.Engine
	Extractor   *extract.Extractor
	Ingester    *indexer.FileIngester
	logger      *zap.Logger
}

// Close drains the queue and releases storage. In-flight documents get shutdownTimeout
// to finish.
func (c *Components) Close() {
	if c.Coordinator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := c.Coordinator.Shutdown(ctx); err != nil {
			c.logger.Warn("queue shutdown incomplete", zap.Error(err))
		}
		cancel()
	}
	if c.Journal != nil {
		_ = c.Journal.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warn("vector store close failed", zap.Error(err))
		}
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	backend, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm backend: %w", err)
	}

	embedder := embedding.NewBackendEmbedder(backend,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithCache(cfg.Embedding.CacheSize),
		embedding.WithLogger(logger),
	)

	vb, err := vector.NewBackend(cfg.Vector.Backend, cfg.Vector.URL, cfg.Storage.VectorIndexPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector backend: %w", err)
	}
	store := vector.NewStore(vb, embedder,
		vector.WithCollection(cfg.Vector.Collection),
		vector.WithUpsertBatchSize(cfg.Vector.UpsertBatchSize),
		vector.WithLogger(logger),
	)
	// A backend that is down now is retried on first use.
	if err := store.Initialize(context.Background()); err != nil {
		logger.Warn("vector store not ready", zap.String("backend", cfg.Vector.Backend), zap.Error(err))
	}

	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithEnrichAllChunks(cfg.Enrichment.AllChunks),
	}
	if cfg.Enrichment.EnabledOrDefault() {
		idxOpts = append(idxOpts, indexer.WithEnricher(enrich.NewEnricher(backend, enrich.WithLogger(logger))))
	}
	idx := indexer.NewIndexer(indexer.NewChunker(indexer.ChunkOptionsFromConfig(&cfg.Chunking)), embedder, store, idxOpts...)

	var journal storage.QueueStore = storage.NopQueueStore{}
	if cfg.Storage.DatabasePath != "" {
		sq, err := storage.NewSQLiteQueueStore(cfg.Storage.DatabasePath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize queue journal: %w", err)
		}
		journal = sq
	}

	coordinator := indexer.NewCoordinator(idx,
		indexer.WithMaxQueueSize(cfg.Queue.MaxSize),
		indexer.WithConcurrency(cfg.Queue.ConcurrentProcessing),
		indexer.WithJournal(journal),
		indexer.WithCoordinatorLogger(logger),
	)

	engine := search.NewEngine(store, backend,
		search.WithSearchConfig(cfg.Search),
		search.WithLogger(logger),
	)

	extractor := extract.NewExtractor()
	logger.Info("components initialized",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.Bool("enrichment", cfg.Enrichment.EnabledOrDefault()),
		zap.Int("concurrency", coordinator.Concurrency()),
		zap.Bool("journal", cfg.Storage.DatabasePath != ""))

	return &Components{
		LLM:         backend,
		Embedder:    embedder,
		Store:       store,
		Journal:     journal,
		Coordinator: coordinator,
		Engine:      engine,
		Extractor:   extractor,
		Ingester:    indexer.NewFileIngester(coordinator, extractor, cfg.Watch.Extensions, logger),
		logger:      logger,
	}, nil
}
