package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicChat_requiresKey(t *testing.T) {
	_, err := NewAnthropicChat(AnthropicConfig{Model: "claude-3-5-haiku-latest"})
	assert.Error(t, err)
}

func TestAnthropicChat_buildParams(t *testing.T) {
	a, err := NewAnthropicChat(AnthropicConfig{APIKey: "k", Model: "m"})
	require.NoError(t, err)

	params, err := a.buildParams([]Message{
		{Role: RoleSystem, Content: "only use context"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	require.NoError(t, err)
	assert.Len(t, params.Messages, 3)
	require.Len(t, params.System, 1)
	assert.Equal(t, "only use context", params.System[0].Text)
	assert.EqualValues(t, defaultAnthropicMaxTokens, params.MaxTokens)

	_, err = a.buildParams([]Message{{Role: RoleSystem, Content: "x"}})
	assert.Error(t, err)
}

func TestAnthropicChat_Chat(t *testing.T) {
	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.System) > 0 {
			gotSystem = body.System[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "m",
			"content": [{"type": "text", "text": "grounded answer"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	a, err := NewAnthropicChat(AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := Complete(context.Background(), a, "what happened?", "answer from context")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", out)
	assert.Equal(t, "answer from context", gotSystem)
}
