// Package extract reads the text out of uploaded and watched files.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest file Extract and ExtractReader accept.
const MaxFileSize = 50 << 20

var (
	// ErrUnsupportedFormat is returned for binary formats without an extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrTooLarge is returned for files above MaxFileSize.
	ErrTooLarge = errors.New("file too large")
)

// Extractor turns files into plain text. Headings are kept as markdown-style "#" lines
// and paragraphs are separated by blank lines so chunking can follow the structure.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractReader reads r, named name, and returns its text. The extension of name picks the format.
func (e *Extractor) ExtractReader(r io.Reader, name string) (string, error) {
	content, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(content) > MaxFileSize {
		return "", fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	return e.ExtractBytes(content, filepath.Ext(name))
}

// ExtractBytes extracts text from content based on ext, e.g. ".docx".
// Unknown extensions are read as text unless the content looks binary.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pdf", ".doc", ".xls", ".ppt", ".pptx", ".odt", ".odp", ".ods":
		return "", fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	case ".txt", ".md", ".rst", "":
		return extractPlain(content), nil
	default:
		if bytes.IndexByte(content, 0) >= 0 {
			return "", fmt.Errorf("%s: binary content: %w", ext, ErrUnsupportedFormat)
		}
		return extractPlain(content), nil
	}
}
