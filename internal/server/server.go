// Package server provides the HTTP API for shirabe.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// Queue is the indexing queue behind the document and queue endpoints.
type Queue interface {
	Enqueue(ctx context.Context, input models.DocumentInput) (string, error)
	Status() models.QueueSnapshot
	Item(docID string) (models.QueueItem, bool)
	Clear(ctx context.Context) int
	Remove(ctx context.Context, docID string) (bool, error)
	DeleteDocument(ctx context.Context, docID string) (int, error)
}

// Searcher answers search and answer requests.
type Searcher interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
	Answer(ctx context.Context, req *models.AnswerRequest) (*models.AnswerResponse, error)
}

// ChunkStore is the read and admin side of the vector store.
type ChunkStore interface {
	GetChunksForDocument(ctx context.Context, docID string) ([]*models.Chunk, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Health(ctx context.Context) error
	CollectionName() string
}

// ModelBackend reports the language-model backend's models and health.
type ModelBackend interface {
	Models(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// Extractor turns an uploaded file into text.
type Extractor interface {
	ExtractReader(r io.Reader, name string) (string, error)
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Deps are the collaborators the server exposes. Watch, Extractor and Models may be nil.
type Deps struct {
	Queue     Queue
	Search    Searcher
	Chunks    ChunkStore
	Models    ModelBackend
	Extractor Extractor
	Watch     WatchService
	// Config is reported by the status endpoint and, with ConfigPath, updated when watch
	// directories change.
	Config     *config.Config
	ConfigPath string
}

// Server is the HTTP server for the shirabe API.
type Server struct {
	deps     Deps
	logger   *zap.Logger
	server   *http.Server
	configMu sync.Mutex
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleEnqueueDocument)
			r.Post("/upload", s.handleUploadDocument)
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}/chunks", s.handleDocumentChunks)
			r.Delete("/{id}", s.handleDeleteDocument)
		})
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueueStatus)
			r.Delete("/", s.handleQueueClear)
			r.Get("/{id}", s.handleQueueItem)
			r.Delete("/{id}", s.handleQueueRemove)
		})
		r.Post("/search", s.handleSearch)
		r.Post("/answer", s.handleAnswer)
		r.Get("/models", s.handleModels)
		r.Get("/status", s.handleStatus)
		r.Post("/admin/reset", s.handleReset)
		r.Route("/watch/directories", func(r chi.Router) {
			r.Get("/", s.handleWatchDirectoriesList)
			r.Post("/", s.handleWatchDirectoriesAdd)
			r.Delete("/", s.handleWatchDirectoriesRemove)
		})
	})
	return r
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
