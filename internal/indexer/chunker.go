// Package indexer turns documents into stored chunks: chunking, the per-document
// pipeline and the queue that drives it.
package indexer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/models"
)

// Chunker defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// sentenceBackoff is how far back from a window boundary the character split
	// looks for a sentence end or newline.
	sentenceBackoff = 100
)

var (
	headerPattern    = regexp.MustCompile(`(?m)^(?:#{1,6}[ \t]+\S|\d+\.(?:\d+\.?)*[ \t]+\S|\[\d+\])`)
	paragraphPattern = regexp.MustCompile(`\n[ \t]*\n`)
)

// ChunkOptions configures a Chunker. Sizes are in characters.
type ChunkOptions struct {
	ChunkSize         int
	ChunkOverlap      int
	RespectHeaders    bool
	RespectParagraphs bool
}

// DefaultChunkOptions returns 1000/200 with header and paragraph splitting enabled.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		RespectHeaders:    true,
		RespectParagraphs: true,
	}
}

// ChunkOptionsFromConfig converts the chunking section of the config.
func ChunkOptionsFromConfig(cfg *config.ChunkingConfig) ChunkOptions {
	return ChunkOptions{
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
		RespectHeaders:    cfg.RespectHeadersOrDefault(),
		RespectParagraphs: cfg.RespectParagraphsOrDefault(),
	}
}

// Chunker splits text into bounded chunks, preferring header and paragraph
// boundaries and falling back to overlapping character windows.
type Chunker struct {
	opts ChunkOptions
}

// NewChunker creates a chunker. A non-positive size uses the default; an overlap that is
// negative or not smaller than the size is treated as zero.
func NewChunker(opts ChunkOptions) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	return &Chunker{opts: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() ChunkOptions {
	return c.opts
}

// Chunk splits text into chunks of docID. It always returns at least one chunk;
// empty text yields a single empty chunk.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	segments := c.split(text)
	chunks := make([]*models.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = &models.Chunk{
			ID:          ChunkID(docID, i),
			DocumentID:  docID,
			Content:     s,
			Position:    i,
			TotalChunks: len(segments),
		}
	}
	return chunks
}

// ChunkID returns the identifier of the chunk at position in docID.
func ChunkID(docID string, position int) string {
	return fmt.Sprintf("%s_%d", docID, position)
}

func (c *Chunker) split(text string) []string {
	if utf8.RuneCountInString(text) <= c.opts.ChunkSize {
		return []string{text}
	}
	if c.opts.RespectHeaders {
		if segs := splitHeaders(text); len(segs) > 1 {
			return c.reduce(segs)
		}
	}
	if c.opts.RespectParagraphs {
		if segs := c.packParagraphs(text); len(segs) > 1 {
			return c.reduce(segs)
		}
	}
	return c.splitCharacters(text)
}

// reduce runs the character split over segments that are still too long.
func (c *Chunker) reduce(segs []string) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if utf8.RuneCountInString(s) > c.opts.ChunkSize {
			out = append(out, c.splitCharacters(s)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

// splitHeaders cuts text before every header line. The header stays with the text after it.
func splitHeaders(text string) []string {
	locs := headerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	bounds := make([]int, 0, len(locs)+2)
	bounds = append(bounds, 0)
	for _, loc := range locs {
		if loc[0] > 0 {
			bounds = append(bounds, loc[0])
		}
	}
	bounds = append(bounds, len(text))

	var segs []string
	for i := 0; i < len(bounds)-1; i++ {
		if s := strings.TrimSpace(text[bounds[i]:bounds[i+1]]); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// packParagraphs greedily joins blank-line separated paragraphs while they fit.
func (c *Chunker) packParagraphs(text string) []string {
	var (
		segs   []string
		cur    strings.Builder
		curLen int
	)
	for _, p := range paragraphPattern.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+2+n > c.opts.ChunkSize {
			segs = append(segs, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		segs = append(segs, cur.String())
	}
	return segs
}

type span struct{ start, end int }

func (c *Chunker) splitCharacters(text string) []string {
	runes := []rune(text)
	spans := charSpans(runes, c.opts.ChunkSize, c.opts.ChunkOverlap)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.start:s.end])
	}
	return out
}

// charSpans windows runes into spans of at most size. A window that does not reach
// the end is cut after the last sentence end or newline within sentenceBackoff of its
// boundary, unless that would leave a whitespace-only span. The next window starts
// overlap characters before the cut, and always after the previous start. Every cut
// lies past the previous one.
func charSpans(runes []rune, size, overlap int) []span {
	n := len(runes)
	if n == 0 {
		return []span{{0, 0}}
	}
	var spans []span
	start, lastCut := 0, 0
	for start < n {
		end := start + size
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		cut := end
		floor := max(end-sentenceBackoff, start+1, lastCut)
		for i := end - 1; i >= floor; i-- {
			if isBreak(runes[i]) {
				if !blank(runes[start : i+1]) {
					cut = i + 1
				}
				break
			}
		}
		spans = append(spans, span{start, cut})
		lastCut = cut

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return spans
}

func blank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isBreak(r rune) bool {
	switch r {
	case '.', '?', '!', '\n':
		return true
	}
	return false
}
