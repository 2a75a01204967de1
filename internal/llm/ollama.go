package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

var _ Backend = (*OllamaClient)(nil)

// Ollama defaults.
const (
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultChatModel      = "llama3.2"
	DefaultTimeout        = 120 * time.Second
)

// OllamaConfig holds connection settings for an Ollama host.
type OllamaConfig struct {
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Timeout        time.Duration
}

// OllamaClient serves embeddings and chat from an Ollama host.
type OllamaClient struct {
	api        *api.Client
	baseURL    string
	embedModel string
	chatModel  string
	logger     *zap.Logger
	initErr    error
}

// NewOllamaClient returns a client for cfg, filling zero fields with defaults.
// A malformed base URL is reported by the first call.
func NewOllamaClient(cfg OllamaConfig, opts ...Option) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := applyOptions(opts)
	httpClient := s.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &OllamaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		embedModel: cfg.EmbeddingModel,
		chatModel:  cfg.ChatModel,
		logger:     s.logger,
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		c.initErr = fmt.Errorf("invalid ollama url %q", cfg.BaseURL)
		return c
	}
	c.api = api.NewClient(base, httpClient)
	return c
}

// Embed returns the embedding for text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", c.mapError(ctx, err))
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("embed: empty embedding returned")
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Chat runs a non-streaming chat completion.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.initErr != nil {
		return "", c.initErr
	}
	if len(messages) == 0 {
		return "", errors.New("chat: messages cannot be empty")
	}
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	stream := false
	req := &api.ChatRequest{Model: c.chatModel, Messages: msgs, Stream: &stream}

	start := time.Now()
	var content strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", c.mapError(ctx, err))
	}
	c.logger.Debug("ollama chat completed",
		zap.String("model", c.chatModel),
		zap.Int("messages", len(messages)),
		zap.Duration("took", time.Since(start)))
	return content.String(), nil
}

// Models lists locally available models.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", c.mapError(ctx, err))
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Health checks that the host answers.
func (c *OllamaClient) Health(ctx context.Context) error {
	if c.initErr != nil {
		return c.initErr
	}
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("health: %w", c.mapError(ctx, err))
	}
	return nil
}

// EmbeddingModelName returns the configured embedding model.
func (c *OllamaClient) EmbeddingModelName() string { return c.embedModel }

// ChatModelName returns the configured chat model.
func (c *OllamaClient) ChatModelName() string { return c.chatModel }

// mapError turns api.StatusError into *StatusError and transport failures into ErrUnavailable.
func (c *OllamaClient) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se api.StatusError
	if errors.As(err, &se) {
		body := se.ErrorMessage
		if body == "" {
			body = se.Status
		}
		return &StatusError{Provider: "ollama", StatusCode: se.StatusCode, Body: strings.TrimSpace(body)}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
