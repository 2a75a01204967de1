package config

import "time"

// Provider and backend names accepted in the config file.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	BackendMemory = "memory"
	BackendChroma = "chroma"
)

const defaultLLMTimeout = 120 * time.Second

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "llama3.2"
	}
	if cfg.LLM.AnthropicModel == "" {
		cfg.LLM.AnthropicModel = "claude-3-5-haiku-latest"
	}
	if cfg.LLM.AnthropicAPIKeyEnv == "" {
		cfg.LLM.AnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.LLM.Timeout == "" {
		cfg.LLM.Timeout = defaultLLMTimeout.String()
	}
	if cfg.LLM.Burst == 0 && cfg.LLM.RequestsPerSecond > 0 {
		cfg.LLM.Burst = 1
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 10
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = BackendMemory
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "documents"
	}
	if cfg.Vector.UpsertBatchSize == 0 {
		cfg.Vector.UpsertBatchSize = 50
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.Queue.MaxSize == 0 {
		cfg.Queue.MaxSize = 100
	}
	if cfg.Queue.ConcurrentProcessing == 0 {
		cfg.Queue.ConcurrentProcessing = 1
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.5
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
