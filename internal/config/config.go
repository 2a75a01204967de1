// Package config provides configuration loading and structs for the shirabe server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Queue      QueueConfig      `yaml:"queue"`
	Search     SearchConfig     `yaml:"search"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds local paths. An empty DatabasePath keeps the queue in memory only;
// an empty VectorIndexPath keeps the memory vector backend unpersisted.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// LLMConfig selects and tunes the language-model backend.
type LLMConfig struct {
	// Provider is "ollama" (chat and embeddings) or "anthropic" (chat via Anthropic, embeddings via Ollama).
	Provider           string  `yaml:"provider"`
	BaseURL            string  `yaml:"base_url"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	ChatModel          string  `yaml:"chat_model"`
	AnthropicModel     string  `yaml:"anthropic_model"`
	AnthropicAPIKeyEnv string  `yaml:"anthropic_api_key_env"`
	Timeout            string  `yaml:"timeout"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
	Burst              int     `yaml:"burst"`
}

// TimeoutDuration parses Timeout; invalid or empty values yield the default.
func (c *LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultLLMTimeout
	}
	return d
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	BatchSize int `yaml:"batch_size"`
	CacheSize int `yaml:"cache_size"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	// Backend is "memory" (in-process, persisted to storage.vector_index_path) or "chroma".
	Backend         string `yaml:"backend"`
	URL             string `yaml:"url"`
	Collection      string `yaml:"collection"`
	UpsertBatchSize int    `yaml:"upsert_batch_size"`
}

// ChunkingConfig holds chunker options.
type ChunkingConfig struct {
	ChunkSize         int   `yaml:"chunk_size"`
	ChunkOverlap      int   `yaml:"chunk_overlap"`
	RespectHeaders    *bool `yaml:"respect_headers"`
	RespectParagraphs *bool `yaml:"respect_paragraphs"`
}

// RespectHeadersOrDefault returns whether to split on headers; defaults to true when unset.
func (c *ChunkingConfig) RespectHeadersOrDefault() bool {
	if c.RespectHeaders != nil {
		return *c.RespectHeaders
	}
	return true
}

// RespectParagraphsOrDefault returns whether to split on paragraphs; defaults to true when unset.
func (c *ChunkingConfig) RespectParagraphsOrDefault() bool {
	if c.RespectParagraphs != nil {
		return *c.RespectParagraphs
	}
	return true
}

// EnrichmentConfig controls metadata enrichment.
type EnrichmentConfig struct {
	Enabled *bool `yaml:"enabled"`
	// AllChunks enriches every chunk instead of the first chunk only.
	AllChunks bool `yaml:"all_chunks"`
}

// EnabledOrDefault returns whether enrichment runs; defaults to true when unset.
func (c *EnrichmentConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// QueueConfig bounds the indexing queue.
type QueueConfig struct {
	MaxSize              int `yaml:"max_size"`
	ConcurrentProcessing int `yaml:"concurrent_processing"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read, parsed or is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderOllama, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q (supported: ollama, anthropic)", c.LLM.Provider))
	}
	switch c.Vector.Backend {
	case BackendMemory:
	case BackendChroma:
		if c.Vector.URL == "" {
			errs = append(errs, errors.New("vector.url is required for the chroma backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector.backend: unknown backend %q (supported: memory, chroma)", c.Vector.Backend))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.default_threshold: %f not in [0,1]", c.Search.DefaultThreshold))
	}
	return errors.Join(errs...)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
