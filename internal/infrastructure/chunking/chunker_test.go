package chunking

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

// wordTokenizer treats every whitespace-separated word as one token, which
// keeps token budgets exact and test inputs readable.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func (wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i := range words {
		tokens[i] = i
	}
	return tokens
}

func (wordTokenizer) Decode(tokens []int) string {
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = fmt.Sprintf("w%d", tok)
	}
	return strings.Join(words, " ")
}

func paragraphOfWords(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ")
}

func testDocCtx() domain.ChunkContext {
	return domain.ChunkContext{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		DocTitle:   "Annual Report",
	}
}

func TestChunkBySectionsSmallSectionsOneChunkEach(t *testing.T) {
	c := NewChunker(1000, 150, wordTokenizer{})

	sections := []domain.Section{
		{Heading: "Item 1", Level: 1, Content: paragraphOfWords("a", 50)},
		{Heading: "Item 1A", Level: 2, Content: paragraphOfWords("b", 80), Page: 12},
	}

	chunks := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d", i, chunk.Index)
		}
		if chunk.TenantID != "tenant-1" {
			t.Fatalf("chunk %d missing tenant id", i)
		}
		if chunk.Metadata.IsSplit {
			t.Fatalf("chunk %d should not be marked split", i)
		}
	}
	if got := chunks[1].Metadata.SourceAnchor; got != "item-1/item-1a-p12" {
		t.Fatalf("anchor = %q", got)
	}
	if !reflect.DeepEqual(chunks[1].Metadata.HeadingPath, []string{"Item 1", "Item 1A"}) {
		t.Fatalf("heading path = %v", chunks[1].Metadata.HeadingPath)
	}
}

func TestChunkBySectionsHeadingPathTruncation(t *testing.T) {
	c := NewChunker(1000, 150, wordTokenizer{})

	sections := []domain.Section{
		{Heading: "Risk Factors", Level: 1, Content: "alpha beta"},
		{Heading: "Market Risk", Level: 2, Content: "gamma delta"},
		{Heading: "Credit Risk", Level: 2, Content: "epsilon zeta"},
		{Heading: "Properties", Level: 1, Content: "eta theta"},
	}

	chunks := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if !reflect.DeepEqual(chunks[2].Metadata.HeadingPath, []string{"Risk Factors", "Credit Risk"}) {
		t.Fatalf("sibling heading path = %v", chunks[2].Metadata.HeadingPath)
	}
	if !reflect.DeepEqual(chunks[3].Metadata.HeadingPath, []string{"Properties"}) {
		t.Fatalf("top-level heading path = %v", chunks[3].Metadata.HeadingPath)
	}
}

func TestChunkBySectionsSkipsEmptySections(t *testing.T) {
	c := NewChunker(1000, 150, wordTokenizer{})

	sections := []domain.Section{
		{Heading: "Empty", Level: 1, Content: "   \n  "},
		{Heading: "Filled", Level: 1, Content: "one two three"},
	}

	chunks := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.Section != "Filled" {
		t.Fatalf("section = %q", chunks[0].Metadata.Section)
	}
}

func TestSplitLargeSectionOverlapCarriesTrailingParagraphs(t *testing.T) {
	c := NewChunker(1000, 150, wordTokenizer{})

	// 12 paragraphs x 100 tokens = 1200 tokens of unique content.
	paragraphs := make([]string, 12)
	for i := range paragraphs {
		paragraphs[i] = paragraphOfWords(fmt.Sprintf("p%d_", i), 100)
	}
	sections := []domain.Section{
		{Heading: "Risk Factors", Level: 1, Content: strings.Join(paragraphs, "\n\n")},
	}

	chunks := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)
	if len(chunks) != 2 {
		t.Fatalf("expected exactly 2 chunks for a 1200-token section, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !chunk.Metadata.IsSplit {
			t.Fatalf("chunk %d should be marked split", i)
		}
		if chunk.TokenCount > 1000 {
			t.Fatalf("chunk %d exceeds chunk size: %d tokens", i, chunk.TokenCount)
		}
	}

	// The second chunk must start with the tail of the first, and the shared
	// region must fit inside the overlap budget.
	last := paragraphs[11-2] // last paragraph of chunk 1 carried into chunk 2
	if !strings.HasPrefix(chunks[1].Content, last) {
		t.Fatalf("second chunk does not start with the overlap paragraph")
	}
	shared := wordTokenizer{}.Count(last)
	if shared > 150 {
		t.Fatalf("overlap of %d tokens exceeds budget", shared)
	}
	if !strings.HasSuffix(chunks[0].Content, last) {
		t.Fatalf("first chunk does not end with the overlap paragraph")
	}
}

func TestSplitLargeSectionOversizedParagraphStaysAtomic(t *testing.T) {
	c := NewChunker(100, 20, wordTokenizer{})

	huge := paragraphOfWords("big", 250)
	sections := []domain.Section{
		{Heading: "Item 7", Level: 1, Content: paragraphOfWords("pre", 50) + "\n\n" + huge + "\n\n" + paragraphOfWords("post", 30)},
	}

	chunks := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)

	found := false
	for _, chunk := range chunks {
		if chunk.Content == huge || strings.Contains(chunk.Content, huge) {
			found = true
		}
		if strings.Contains(chunk.Content, "big0") && !strings.Contains(chunk.Content, "big249") {
			t.Fatalf("oversized paragraph was split across chunks")
		}
	}
	if !found {
		t.Fatalf("oversized paragraph missing from output")
	}
}

func TestChunkFixedSizeWindows(t *testing.T) {
	c := NewChunker(10, 2, wordTokenizer{})

	content := paragraphOfWords("w", 25)
	chunks := c.ChunkDocument(content, nil, testDocCtx(), domain.StrategyFixedSize)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(chunks))
	}
	if chunks[0].TokenCount != 10 || chunks[1].TokenCount != 10 || chunks[2].TokenCount != 9 {
		t.Fatalf("window sizes = %d/%d/%d", chunks[0].TokenCount, chunks[1].TokenCount, chunks[2].TokenCount)
	}
	if chunks[1].Metadata.Section != "Chunk 2" {
		t.Fatalf("section label = %q", chunks[1].Metadata.Section)
	}
	if chunks[2].Metadata.SourceAnchor != "chunk-3" {
		t.Fatalf("anchor = %q", chunks[2].Metadata.SourceAnchor)
	}
	if len(chunks[0].Metadata.HeadingPath) != 0 {
		t.Fatalf("fixed-size chunks should have an empty heading path")
	}
}

func TestChunkFixedSizeUsedWhenNoSections(t *testing.T) {
	c := NewChunker(10, 2, wordTokenizer{})
	chunks := c.ChunkDocument(paragraphOfWords("w", 5), nil, testDocCtx(), domain.StrategySectionBased)
	if len(chunks) != 1 {
		t.Fatalf("expected fallback to fixed-size, got %d chunks", len(chunks))
	}
}

func TestChunkingIsDeterministic(t *testing.T) {
	c := NewChunker(120, 30, wordTokenizer{})

	paragraphs := make([]string, 8)
	for i := range paragraphs {
		paragraphs[i] = paragraphOfWords(fmt.Sprintf("s%d_", i), 45)
	}
	sections := []domain.Section{
		{Heading: "Overview", Level: 1, Content: paragraphs[0]},
		{Heading: "Risk Factors", Level: 1, Content: strings.Join(paragraphs[1:], "\n\n"), Page: 4},
	}

	first := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)
	second := c.ChunkDocument("", sections, testDocCtx(), domain.StrategySectionBased)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical input produced different chunk lists")
	}
}

func TestSourceAnchor(t *testing.T) {
	cases := []struct {
		path []string
		page int
		want string
	}{
		{nil, 0, "content"},
		{nil, 3, "p3"},
		{[]string{"Item 1A.", "Risk Factors"}, 0, "item-1a/risk-factors"},
		{[]string{"Item 1A.", "Risk Factors"}, 7, "item-1a/risk-factors-p7"},
	}
	for _, tc := range cases {
		if got := sourceAnchor(tc.path, tc.page); got != tc.want {
			t.Fatalf("sourceAnchor(%v, %d) = %q, want %q", tc.path, tc.page, got, tc.want)
		}
	}
}
