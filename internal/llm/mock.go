package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/hyperjump/shirabe/pkg/utils"
)

var _ Backend = (*Mock)(nil)

// Mock is a deterministic in-process backend for tests and offline runs.
// Embeddings are bag-of-words hash vectors; chat replies come from Responses,
// matched by substring against the last message, falling back to Default.
type Mock struct {
	Dims      int
	Responses map[string]string
	Default   string
	// EmbedErr, when set, decides per text whether Embed fails.
	EmbedErr func(text string) error
	// ChatErr, when set, decides per prompt whether Chat fails.
	ChatErr   func(prompt string) error
	HealthErr error
	Names     []string

	mu         sync.Mutex
	embedCalls int
	chatCalls  int
	prompts    []string
}

// NewMock returns a Mock with dims-dimensional embeddings.
func NewMock(dims int) *Mock {
	if dims <= 0 {
		dims = 64
	}
	return &Mock{Dims: dims, Responses: map[string]string{}, Names: []string{"mock-embed", "mock-chat"}}
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()
	if m.EmbedErr != nil {
		if err := m.EmbedErr(text); err != nil {
			return nil, err
		}
	}
	return utils.HashVector(text, m.Dims), nil
}

func (m *Mock) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	m.mu.Lock()
	m.chatCalls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.ChatErr != nil {
		if err := m.ChatErr(prompt); err != nil {
			return "", err
		}
	}
	for key, resp := range m.Responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return m.Default, nil
}

func (m *Mock) Models(ctx context.Context) ([]string, error) {
	return m.Names, nil
}

func (m *Mock) Health(ctx context.Context) error {
	return m.HealthErr
}

// EmbedCalls returns how many times Embed ran.
func (m *Mock) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// ChatCalls returns how many times Chat ran.
func (m *Mock) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// Prompts returns the last message of every Chat call so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
