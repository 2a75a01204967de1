// Package cli formats command output for the shirabe CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	snippetLen = 300
	rule       = "─────────────────────────────────────────────────────────"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.Chunk.ID, TruncateWords(oneLine(r.Chunk.Content), 12))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
		for _, r := range response.Results {
			writeResult(w, r)
		}
		return nil
	}
}

func writeResult(w io.Writer, r *models.SearchResult) {
	c := r.Chunk
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", r.Rank, r.Score)
	fmt.Fprintf(w, "Document: %s (chunk %d of %d)\n", c.DocumentID, c.Position+1, c.TotalChunks)
	if c.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", c.Title)
	}
	if m := c.Metadata; m != nil {
		if m.Category != "" {
			fmt.Fprintf(w, "Category: %s (confidence %.2f)\n", m.Category, m.Confidence)
		}
		if m.Summary != "" {
			fmt.Fprintf(w, "Summary: %s\n", m.Summary)
		}
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(c.Content, snippetLen))
}

// WriteAnswer writes a generated answer and its sources.
func WriteAnswer(w io.Writer, resp *models.AnswerResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range resp.Sources {
		title := s.Chunk.Title
		if title == "" {
			title = s.Chunk.DocumentID
		}
		fmt.Fprintf(w, "  [%d] %s (chunk %d, score %.2f)\n", i+1, title, s.Chunk.Position+1, s.Score)
	}
	return nil
}

// WriteQueue writes a queue snapshot.
func WriteQueue(w io.Writer, snap models.QueueSnapshot, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, snap)
	}
	st := snap.Stats
	fmt.Fprintf(w, "total: %d  pending: %d  processing: %d  completed: %d  failed: %d\n",
		st.Total, st.Pending, st.Processing, st.Completed, st.Failed)
	if len(snap.Items) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	for _, it := range snap.Items {
		line := fmt.Sprintf("%-36s  %-10s  %3d%%  %s", it.DocumentID, it.Status, it.Progress, TruncateWords(it.Title, 8))
		switch {
		case it.Error != "":
			line += "  error: " + it.Error
		case it.Status == models.StatusCompleted:
			line += fmt.Sprintf("  (%d chunks", it.ChunkCount)
			if it.StartedAt != nil && it.CompletedAt != nil {
				line += ", " + it.CompletedAt.Sub(*it.StartedAt).Round(time.Millisecond).String()
			}
			line += ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
