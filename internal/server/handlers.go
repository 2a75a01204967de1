package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/extract"
	"github.com/hyperjump/shirabe/internal/indexer"
	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/vector"
	"go.uber.org/zap"
)

const (
	maxJSONBody   = 10 << 20
	maxUploadBody = extract.MaxFileSize + 1<<20
	healthTimeout = 5 * time.Second
)

// statusFor maps errors from the core packages to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, indexer.ErrEmptyContent),
		errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, indexer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, indexer.ErrItemProcessing),
		errors.Is(err, indexer.ErrAlreadyQueued),
		errors.Is(err, indexer.ErrDeleting):
		return http.StatusConflict
	case errors.Is(err, indexer.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, indexer.ErrShutdown),
		errors.Is(err, llm.ErrUnavailable),
		errors.Is(err, vector.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleEnqueueDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !s.decode(w, r, &input) {
		return
	}
	s.logger.Debug("enqueue document request", zap.String("title", input.Title), zap.Int("bytes", len(input.Content)))
	s.enqueue(w, r, input)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, input models.DocumentInput) {
	id, err := s.deps.Queue.Enqueue(r.Context(), input)
	if err != nil {
		s.fail(w, "enqueue failed", err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(models.StatusPending)})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extractor == nil {
		s.respondError(w, http.StatusNotImplemented, "uploads not enabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	text, err := s.deps.Extractor.ExtractReader(file, header.Filename)
	if err != nil {
		s.fail(w, "upload extraction failed", err)
		return
	}
	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	s.logger.Debug("upload document request", zap.String("filename", header.Filename), zap.Int64("bytes", header.Size))
	s.enqueue(w, r, models.DocumentInput{
		Title:    title,
		Content:  text,
		Source:   "upload",
		Metadata: map[string]interface{}{"filename": header.Filename},
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Chunks.ListDocumentIDs(r.Context())
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": ids, "total": len(ids)})
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunks, err := s.deps.Chunks.GetChunksForDocument(r.Context(), id)
	if err != nil {
		s.fail(w, "get chunks failed", err)
		return
	}
	if len(chunks) == 0 {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"document_id": id, "chunks": chunks, "total": len(chunks)})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	n, err := s.deps.Queue.DeleteDocument(r.Context(), id)
	if err != nil {
		s.fail(w, "delete document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": "deleted", "chunks_deleted": n})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Queue.Status())
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.deps.Queue.Item(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "queue item not found")
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Queue.Clear(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.deps.Queue.Remove(r.Context(), id)
	if err != nil {
		s.fail(w, "queue remove failed", err)
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "queue item not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	resp, err := s.deps.Search.Search(r.Context(), &query)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("answer request", zap.String("query", req.Query))
	resp, err := s.deps.Search.Answer(r.Context(), &req)
	if err != nil {
		s.fail(w, "answer failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		s.respondError(w, http.StatusNotImplemented, "no language-model backend configured")
		return
	}
	names, err := s.deps.Models.Models(r.Context())
	if err != nil {
		s.fail(w, "list models failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"models": names})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	components := map[string]string{"vector_store": "ok"}
	status := "ok"
	if err := s.deps.Chunks.Health(ctx); err != nil {
		components["vector_store"] = err.Error()
		status = "degraded"
	}
	if s.deps.Models != nil {
		components["llm"] = "ok"
		if err := s.deps.Models.Health(ctx); err != nil {
			components["llm"] = err.Error()
			status = "degraded"
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": status, "components": components})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunks, err := s.deps.Chunks.Count(ctx)
	if err != nil {
		s.fail(w, "status: count chunks failed", err)
		return
	}
	ids, err := s.deps.Chunks.ListDocumentIDs(ctx)
	if err != nil {
		s.fail(w, "status: list documents failed", err)
		return
	}
	resp := map[string]interface{}{
		"documents":  len(ids),
		"chunks":     chunks,
		"collection": s.deps.Chunks.CollectionName(),
		"queue":      s.deps.Queue.Status().Stats,
	}
	if cfg := s.deps.Config; cfg != nil {
		resp["config"] = map[string]interface{}{
			"llm_provider":          cfg.LLM.Provider,
			"embedding_model":       cfg.LLM.EmbeddingModel,
			"chat_model":            cfg.LLM.ChatModel,
			"vector_backend":        cfg.Vector.Backend,
			"chunk_size":            cfg.Chunking.ChunkSize,
			"chunk_overlap":         cfg.Chunking.ChunkOverlap,
			"enrichment_enabled":    cfg.Enrichment.EnabledOrDefault(),
			"concurrent_processing": cfg.Queue.ConcurrentProcessing,
			"database_path":         cfg.Storage.DatabasePath,
			"vector_index_path":     cfg.Storage.VectorIndexPath,
		}
		if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if stats := s.deps.Queue.Status().Stats; stats.Processing > 0 {
		s.respondError(w, http.StatusConflict, "documents are being processed")
		return
	}
	if err := s.deps.Chunks.Reset(r.Context()); err != nil {
		s.fail(w, "reset failed", err)
		return
	}
	cleared := s.deps.Queue.Clear(r.Context())
	s.logger.Info("admin reset", zap.Int("queue_cleared", cleared))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "reset", "queue_cleared": cleared})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.deps.Watch.Directories()})
}

type watchDirectoryRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchDirectoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.deps.Watch.AddDirectory(abs, syncExisting); err != nil {
		s.fail(w, "watch add directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var req watchDirectoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			path = req.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.deps.Watch.RemoveDirectory(abs); err != nil {
		s.fail(w, "watch remove directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch roots back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.deps.ConfigPath == "" || s.deps.Config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.deps.Config.Watch.Directories = s.deps.Watch.Directories()
	if err := config.Save(s.deps.ConfigPath, s.deps.Config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
