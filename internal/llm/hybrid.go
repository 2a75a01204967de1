package llm

import (
	"context"
	"fmt"
)

var _ Backend = (*Hybrid)(nil)

// Hybrid embeds with one backend and chats with another model.
type Hybrid struct {
	embed     Backend
	chat      ChatModel
	chatModel string
}

// NewHybrid returns a backend that sends embeddings to embed and chat to chat.
// chatModel is reported by Models alongside the embedding backend's models.
func NewHybrid(embed Backend, chat ChatModel, chatModel string) *Hybrid {
	return &Hybrid{embed: embed, chat: chat, chatModel: chatModel}
}

func (h *Hybrid) Embed(ctx context.Context, text string) ([]float32, error) {
	return h.embed.Embed(ctx, text)
}

func (h *Hybrid) Chat(ctx context.Context, messages []Message) (string, error) {
	return h.chat.Chat(ctx, messages)
}

func (h *Hybrid) Models(ctx context.Context) ([]string, error) {
	models, err := h.embed.Models(ctx)
	if err != nil {
		return nil, err
	}
	if h.chatModel != "" {
		models = append(models, h.chatModel)
	}
	return models, nil
}

// Health reports the embedding backend; chat is only checked on use.
func (h *Hybrid) Health(ctx context.Context) error {
	if err := h.embed.Health(ctx); err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}
	return nil
}
