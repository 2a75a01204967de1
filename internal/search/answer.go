package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/shirabe/internal/llm"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// DeclineAnswer is returned when no retrieved source is relevant enough to answer from.
const DeclineAnswer = "I don't have enough information in the indexed documents to answer this question."

const answerSystemPrompt = `You answer questions using only the context provided by the user message.
Rules:
- Use only facts stated in the context. Do not use prior knowledge.
- If the context does not contain enough information to answer, reply exactly:
"` + DeclineAnswer + `"
- Do not invent names, numbers, dates or sources.
- Cite the sources you used by their bracketed number, e.g. [1].`

// maxEntitiesInContext caps the entity list rendered per source.
const maxEntitiesInContext = 10

// Answer retrieves sources for the request and asks the chat model for an answer grounded
// in them. Without any sources it declines without calling the model.
func (e *Engine) Answer(ctx context.Context, req *models.AnswerRequest) (*models.AnswerResponse, error) {
	start := time.Now()
	if e.chat == nil {
		return nil, errors.New("answer: no chat model configured")
	}
	query := req.SearchQuery()
	if err := processQuery(query, e.config); err != nil {
		return nil, err
	}
	sources, err := e.retriever.Search(ctx, query.Query, query.Limit, query.Threshold)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieve: %w", err)
	}
	resp := &models.AnswerResponse{
		Sources: sources,
		Query:   query.Query,
	}
	if resp.Sources == nil {
		resp.Sources = []*models.SearchResult{}
	}
	if len(sources) == 0 {
		resp.Answer = DeclineAnswer
		resp.QueryTime = time.Since(start).Milliseconds()
		return resp, nil
	}

	text, err := llm.Complete(ctx, e.chat, buildAnswerPrompt(query.Query, sources), answerSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}
	resp.Answer = strings.TrimSpace(text)
	resp.Grounded = resp.Answer != "" && resp.Answer != DeclineAnswer
	if resp.Answer == "" {
		resp.Answer = DeclineAnswer
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("answer generated",
		zap.String("query", query.Query),
		zap.Int("sources", len(sources)),
		zap.Bool("grounded", resp.Grounded),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

// buildAnswerPrompt renders the numbered grounding context followed by the question.
func buildAnswerPrompt(question string, sources []*models.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, src := range sources {
		writeSource(&b, i+1, src)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func writeSource(b *strings.Builder, n int, src *models.SearchResult) {
	c := src.Chunk
	fmt.Fprintf(b, "[%d]", n)
	if c.Title != "" {
		fmt.Fprintf(b, " %s", c.Title)
	}
	if c.TotalChunks > 1 {
		fmt.Fprintf(b, " (part %d of %d)", c.Position+1, c.TotalChunks)
	}
	fmt.Fprintf(b, " relevance %.2f\n", src.Score)
	if m := c.Metadata; m != nil {
		if m.Summary != "" {
			fmt.Fprintf(b, "Summary: %s\n", m.Summary)
		}
		if m.Category != "" {
			fmt.Fprintf(b, "Category: %s\n", m.Category)
		}
		if len(m.Entities) > 0 {
			names := make([]string, 0, len(m.Entities))
			for i, ent := range m.Entities {
				if i == maxEntitiesInContext {
					break
				}
				names = append(names, fmt.Sprintf("%s (%s)", ent.Name, ent.Type))
			}
			fmt.Fprintf(b, "Entities: %s\n", strings.Join(names, ", "))
		}
	}
	b.WriteString("Content:\n")
	b.WriteString(strings.TrimSpace(c.Content))
	b.WriteString("\n\n")
}
