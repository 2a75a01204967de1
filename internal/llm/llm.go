// Package llm provides clients for the language-model backends used for embeddings and chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnavailable reports that a backend could not be reached or is refusing work.
var ErrUnavailable = errors.New("llm backend unavailable")

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbeddingModel turns text into a vector.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatModel answers a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Backend is a full language-model host.
type Backend interface {
	EmbeddingModel
	ChatModel
	// Models lists the model names the backend can serve.
	Models(ctx context.Context) ([]string, error)
	// Health returns nil when the backend is reachable.
	Health(ctx context.Context) error
}

// Complete sends a single prompt with an optional system instruction.
func Complete(ctx context.Context, chat ChatModel, prompt, system string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return chat.Chat(ctx, msgs)
}

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap maps throttling and server-side failures to ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return ErrUnavailable
	}
	return nil
}

type settings struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures a client in this package.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used by REST backends.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

func applyOptions(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}
