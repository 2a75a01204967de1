package indexer

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"
)

// words returns roughly n characters of lower-case prose without sentence ends.
func words(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("lorem ipsum ")
	}
	return strings.TrimSpace(b.String()[:n])
}

func paragraph(n int) string {
	return strings.Repeat("x", n)
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkOptions())
	text := "Patrol reached the northern ridge without contact."
	chunks := c.Chunk("doc1", text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.ID != "doc1_0" || ch.Position != 0 || ch.TotalChunks != 1 || ch.Content != text {
		t.Errorf("unexpected chunk: %+v", ch)
	}
}

func TestChunker_EmptyTextSingleEmptyChunk(t *testing.T) {
	c := NewChunker(DefaultChunkOptions())
	chunks := c.Chunk("d", "")
	if len(chunks) != 1 || chunks[0].Content != "" || chunks[0].TotalChunks != 1 {
		t.Fatalf("expected one empty chunk, got %+v", chunks)
	}
}

func TestChunker_ParagraphsLargerThanHalf(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 1000, ChunkOverlap: 200, RespectHeaders: true, RespectParagraphs: true})
	p := paragraph(600)
	chunks := c.Chunk("doc", p+"\n\n"+p+"\n\n"+p)
	// any two paragraphs plus the separator exceed 1000
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if utf8.RuneCountInString(ch.Content) > 1000 {
			t.Errorf("chunk %d has %d chars", i, len(ch.Content))
		}
		if ch.Content != p {
			t.Errorf("chunk %d should be exactly one paragraph", i)
		}
	}
}

func TestChunker_ParagraphsPackedGreedily(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 1000, RespectParagraphs: true})
	p := paragraph(400)
	chunks := c.Chunk("doc", strings.Join([]string{p, p, p, p}, "\n\n"))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	want := p + "\n\n" + p
	for i, ch := range chunks {
		if ch.Content != want {
			t.Errorf("chunk %d = %d chars, want two paragraphs", i, len(ch.Content))
		}
	}
}

func TestChunker_HeadersKeepMarkerWithText(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 700, RespectHeaders: true, RespectParagraphs: true})
	text := "# Situation\n" + words(600) + "\n# Mission\n" + words(600)
	chunks := c.Chunk("doc", text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "# Situation\n") {
		t.Errorf("chunk 0 = %.30q", chunks[0].Content)
	}
	if !strings.HasPrefix(chunks[1].Content, "# Mission\n") {
		t.Errorf("chunk 1 = %.30q", chunks[1].Content)
	}
}

func TestChunker_HeadersDisabledFallsBackToParagraphs(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 700, RespectHeaders: false, RespectParagraphs: true})
	text := "# Situation\n" + words(600) + "\n\n# Mission\n" + words(600)
	chunks := c.Chunk("doc", text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Content, "# Mission") {
		t.Errorf("chunk 1 = %.30q", chunks[1].Content)
	}
}

func TestSplitHeaders(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"markdown", "# A\none\n## B\ntwo", []string{"# A\none", "## B\ntwo"}},
		{"numbered", "1. Scope\none\n1.2 Detail\ntwo\n2. End\nthree", []string{"1. Scope\none", "1.2 Detail\ntwo", "2. End\nthree"}},
		{"bracketed", "[1] first note\n[2] second note", []string{"[1] first note", "[2] second note"}},
		{"preamble kept", "intro\n# A\nbody", []string{"intro", "# A\nbody"}},
		{"year is not a header", "2024 was quiet\nnothing else", nil},
		{"hash without space", "#tag line\ntext", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitHeaders(tt.text)
			if len(tt.want) == 0 {
				if len(got) > 1 {
					t.Errorf("expected no split, got %q", got)
				}
				return
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunker_OversizedSegmentReduced(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 500, ChunkOverlap: 50, RespectParagraphs: true})
	chunks := c.Chunk("doc", words(1400)+"\n\n"+words(100))
	if len(chunks) < 4 {
		t.Fatalf("expected the long paragraph to be split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Position != i || ch.TotalChunks != len(chunks) {
			t.Errorf("chunk %d: position=%d total=%d", i, ch.Position, ch.TotalChunks)
		}
		if n := utf8.RuneCountInString(ch.Content); n > 500 {
			t.Errorf("chunk %d has %d chars", i, n)
		}
	}
	if chunks[len(chunks)-1].Content != words(100) {
		t.Error("short trailing paragraph should stay whole")
	}
}

func TestChunker_CharacterSplitBacksOffToSentence(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 20})
	chunks := c.Chunk("doc", "Hello there. General Kenobi")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "Hello there." || chunks[1].Content != " General Kenobi" {
		t.Errorf("unexpected split: %q / %q", chunks[0].Content, chunks[1].Content)
	}
}

func TestChunker_CharacterSplitHardCut(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 10})
	chunks := c.Chunk("doc", strings.Repeat("a", 25))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != strings.Repeat("a", 10) || chunks[2].Content != strings.Repeat("a", 5) {
		t.Errorf("unexpected chunks %q", []string{chunks[0].Content, chunks[1].Content, chunks[2].Content})
	}
}

func TestChunker_CountsCharactersNotBytes(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 10})
	chunks := c.Chunk("doc", strings.Repeat("é", 30))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if !utf8.ValidString(ch.Content) || utf8.RuneCountInString(ch.Content) != 10 {
			t.Errorf("chunk %q is not 10 runes", ch.Content)
		}
	}
}

func TestNewChunker_ClampsOptions(t *testing.T) {
	tests := []struct {
		in       ChunkOptions
		wantSize int
		wantOver int
	}{
		{ChunkOptions{ChunkSize: 100, ChunkOverlap: 100}, 100, 0},
		{ChunkOptions{ChunkSize: 100, ChunkOverlap: 150}, 100, 0},
		{ChunkOptions{ChunkSize: 100, ChunkOverlap: -5}, 100, 0},
		{ChunkOptions{ChunkSize: 0, ChunkOverlap: 200}, DefaultChunkSize, 200},
		{ChunkOptions{ChunkSize: 100, ChunkOverlap: 20}, 100, 20},
	}
	for _, tt := range tests {
		got := NewChunker(tt.in).Options()
		if got.ChunkSize != tt.wantSize || got.ChunkOverlap != tt.wantOver {
			t.Errorf("NewChunker(%+v) = size %d overlap %d", tt.in, got.ChunkSize, got.ChunkOverlap)
		}
	}
}

func TestChunker_IdempotentIDs(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 50, ChunkOverlap: 10, RespectParagraphs: true})
	text := words(400) + "\n\n" + words(120)
	a := c.Chunk("doc-7", text)
	b := c.Chunk("doc-7", text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].ID != ChunkID("doc-7", i) {
			t.Errorf("position %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func randomText(r *rand.Rand, n int) string {
	alphabet := []rune("abcdefghij klmnop. qrs? tuv! wxyz\n\n# 1. [2] é")
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func TestChunker_SizeBoundAndTotals(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		size := 20 + r.Intn(300)
		opts := ChunkOptions{
			ChunkSize:         size,
			ChunkOverlap:      r.Intn(size),
			RespectHeaders:    r.Intn(2) == 0,
			RespectParagraphs: r.Intn(2) == 0,
		}
		text := randomText(r, r.Intn(3000))
		chunks := NewChunker(opts).Chunk("doc", text)
		if len(chunks) == 0 {
			t.Fatalf("no chunks for %d chars", len(text))
		}
		for j, ch := range chunks {
			if n := utf8.RuneCountInString(ch.Content); n > size {
				t.Fatalf("case %d chunk %d: %d chars > %d", i, j, n, size)
			}
			if ch.Position != j || ch.TotalChunks != len(chunks) {
				t.Fatalf("case %d chunk %d: position=%d total=%d", i, j, ch.Position, ch.TotalChunks)
			}
		}
	}
}

func TestCharSpans_CoverTextWithoutLoss(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		size := 5 + r.Intn(200)
		overlap := r.Intn(size)
		runes := []rune(randomText(r, 1+r.Intn(2000)))
		spans := charSpans(runes, size, overlap)

		if spans[0].start != 0 || spans[len(spans)-1].end != len(runes) {
			t.Fatalf("case %d: spans do not reach both ends", i)
		}
		rebuilt := string(runes[spans[0].start:spans[0].end])
		for j := 1; j < len(spans); j++ {
			prev, cur := spans[j-1], spans[j]
			if cur.start <= prev.start || cur.start > prev.end {
				t.Fatalf("case %d span %d: start %d after [%d,%d)", i, j, cur.start, prev.start, prev.end)
			}
			rebuilt += string(runes[prev.end:cur.end])
		}
		if rebuilt != string(runes) {
			t.Fatalf("case %d: rebuilt text differs", i)
		}
	}
}

func TestCharSpans_ZeroOverlapConcatenates(t *testing.T) {
	text := "One. Two? Three! Four\nfive six seven eight nine ten."
	c := NewChunker(ChunkOptions{ChunkSize: 12})
	var b strings.Builder
	for _, ch := range c.Chunk("doc", text) {
		b.WriteString(ch.Content)
	}
	if b.String() != text {
		t.Errorf("concatenation = %q", b.String())
	}
}

func TestCharSpans_MaxOverlapStillProgresses(t *testing.T) {
	spans := charSpans([]rune(strings.Repeat("z", 100)), 10, 9)
	if len(spans) != 91 {
		t.Errorf("expected 91 windows, got %d", len(spans))
	}
}

func TestCharSpans_SmallWindowsNeverBlank(t *testing.T) {
	runes := []rune(strings.Repeat("Alpha bravo.\n\n", 40))
	for size := 3; size < 100; size++ {
		for _, overlap := range []int{0, size / 3} {
			spans := charSpans(runes, size, overlap)
			for j, s := range spans[:len(spans)-1] {
				text := string(runes[s.start:s.end])
				if strings.TrimSpace(text) == "" || s.end-s.start < 2 {
					t.Fatalf("size %d overlap %d span %d: %q", size, overlap, j, text)
				}
			}
		}
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a  b  ", "a  b"},
		{"a  \r\nb\r\n\r\n\r\n\r\nc  ", "a\nb\n\nc"},
		{"line\rnext", "line\nnext"},
		{"p1\n\np2", "p1\n\np2"},
		{"\n\n\n", ""},
	}
	for _, tt := range tests {
		if got := Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
