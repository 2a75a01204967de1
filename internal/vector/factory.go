package vector

import (
	"fmt"

	"github.com/hyperjump/shirabe/internal/config"
	"go.uber.org/zap"
)

// BackendType names a vector store implementation.
type BackendType string

const (
	// BackendTypeMemory keeps vectors in process, optionally persisted to a file.
	BackendTypeMemory BackendType = config.BackendMemory
	// BackendTypeChroma uses a Chroma server.
	BackendTypeChroma BackendType = config.BackendChroma
)

// NewBackend creates a backend of the given type. url is used by chroma, path by memory.
func NewBackend(backendType, url, path string, logger *zap.Logger) (Backend, error) {
	switch BackendType(backendType) {
	case BackendTypeMemory, "":
		return NewMemoryBackend(path)
	case BackendTypeChroma:
		if url == "" {
			return nil, fmt.Errorf("chroma backend requires a url")
		}
		b, err := NewChromaBackend(url, WithChromaLogger(logger))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, chroma)", backendType)
	}
}
