package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

var _ ChatModel = (*AnthropicChat)(nil)

const defaultAnthropicMaxTokens = 4096

// AnthropicChat answers chat requests with the Anthropic Messages API.
type AnthropicChat struct {
	client    anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// AnthropicConfig holds the settings for AnthropicChat.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

// NewAnthropicChat returns a chat model for cfg. The API key is required.
func NewAnthropicChat(cfg AnthropicConfig, opts ...Option) (*AnthropicChat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	s := applyOptions(opts)

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if s.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(s.httpClient))
	}

	return &AnthropicChat{
		client:    anthropic.NewClient(reqOpts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    s.logger,
	}, nil
}

// Chat sends messages to the model. System messages become the request's system prompt.
func (a *AnthropicChat) Chat(ctx context.Context, messages []Message) (string, error) {
	params, err := a.buildParams(messages)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat: %w", &StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Error()})
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("chat: %w", ctx.Err())
		}
		return "", fmt.Errorf("chat: %w: %w", ErrUnavailable, err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	a.logger.Debug("anthropic chat completed",
		zap.String("model", a.model),
		zap.Int("messages", len(messages)),
		zap.Duration("took", time.Since(start)))
	return out.String(), nil
}

// ModelName returns the configured model.
func (a *AnthropicChat) ModelName() string { return a.model }

func (a *AnthropicChat) buildParams(messages []Message) (anthropic.MessageNewParams, error) {
	var system []string
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(converted) == 0 {
		return anthropic.MessageNewParams{}, errors.New("chat: at least one user message is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages:  converted,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params, nil
}
