package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/fileid"
	"github.com/hyperjump/shirabe/internal/models"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"

	// SourceFile is the source tag of documents read from disk.
	SourceFile = "file"
)

// TextExtractor reads the text of a file.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// DocumentQueue accepts documents for indexing.
type DocumentQueue interface {
	EnqueueWithID(ctx context.Context, docID string, input models.DocumentInput) (string, error)
	DeleteDocument(ctx context.Context, docID string) (int, error)
}

type fileState struct {
	docID string
	mtime int64
	size  int64
}

// FileIngester enqueues files from disk under IDs derived from their paths. It remembers
// the size and mtime it last saw per path so an unchanged file is skipped, and a changed or
// previously unseen file replaces whatever document its path produced before.
type FileIngester struct {
	queue      DocumentQueue
	extractor  TextExtractor
	extensions []string
	logger     *zap.Logger

	mu    sync.Mutex
	files map[string]fileState
}

// NewFileIngester creates an ingester. Only files whose extension is in extensions are
// accepted; an empty list accepts everything.
func NewFileIngester(queue DocumentQueue, extractor TextExtractor, extensions []string, logger *zap.Logger) *FileIngester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileIngester{
		queue:      queue,
		extractor:  extractor,
		extensions: extensions,
		logger:     logger,
		files:      make(map[string]fileState),
	}
}

// IngestFile enqueues the file at path and returns its document ID. An unchanged file
// that was already enqueued returns its existing ID and skipped=true.
func (f *FileIngester) IngestFile(ctx context.Context, path string) (docID string, skipped bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(f.extensions) > 0 && !extensionAllowed(ext, f.extensions) {
		return "", false, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", false, fmt.Errorf("not a regular file: %s", absPath)
	}

	state := fileState{mtime: info.ModTime().UnixNano(), size: info.Size()}
	f.mu.Lock()
	prev, known := f.files[absPath]
	f.mu.Unlock()
	if known && prev.mtime == state.mtime && prev.size == state.size {
		f.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return prev.docID, true, nil
	}

	text, err := f.extractor.Extract(absPath)
	if err != nil {
		return "", false, fmt.Errorf("extract content: %w", err)
	}
	docID = fileid.DocID(absPath)
	f.dropDocument(ctx, absPath, docID)

	// mtime and size are strings so nanoseconds survive JSON
	docID, err = f.queue.EnqueueWithID(ctx, docID, models.DocumentInput{
		Title:   filepath.Base(absPath),
		Content: text,
		Source:  SourceFile,
		Metadata: map[string]interface{}{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(state.mtime, 10),
			metaKeySourceSize:  strconv.FormatInt(state.size, 10),
		},
	})
	if err != nil {
		return "", false, err
	}
	state.docID = docID
	f.mu.Lock()
	f.files[absPath] = state
	f.mu.Unlock()
	f.logger.Debug("file enqueued", zap.String("path", absPath), zap.String("doc_id", docID))
	return docID, false, nil
}

// IngestDirectory walks dir recursively and enqueues each regular file with an allowed
// extension. It returns how many files were enqueued and stops at the first error.
func (f *FileIngester) IngestDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(f.extensions) > 0 && !extensionAllowed(ext, f.extensions) {
			return nil
		}
		// follow symlinks, but only to regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		_, skipped, ingestErr := f.IngestFile(ctx, path)
		if ingestErr != nil {
			if errors.Is(ingestErr, ErrEmptyContent) {
				f.logger.Debug("skipping empty file", zap.String("path", path))
				return nil
			}
			return ingestErr
		}
		if !skipped {
			n++
		}
		return nil
	})
	return n, err
}

// RemoveFile deletes the document produced by path, if any.
func (f *FileIngester) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	f.dropDocument(ctx, absPath, fileid.DocID(absPath))
	return nil
}

// DocumentID returns the document last enqueued for path.
func (f *FileIngester) DocumentID(path string) (string, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.files[absPath]
	return st.docID, ok
}

func (f *FileIngester) dropDocument(ctx context.Context, absPath, docID string) {
	f.mu.Lock()
	delete(f.files, absPath)
	f.mu.Unlock()
	if _, err := f.queue.DeleteDocument(ctx, docID); err != nil && !errors.Is(err, ErrNotFound) {
		f.logger.Warn("failed to delete previous document",
			zap.String("path", absPath), zap.String("doc_id", docID), zap.Error(err))
	}
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
