package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker segments parsed documents into citation-addressable chunks.
// Token budgets are measured through the injected tokenizer, so the same
// input and configuration always produce the same chunk list.
type Chunker struct {
	chunkSize int
	overlap   int
	tokens    ports.Tokenizer
}

func NewChunker(chunkSize, overlap int, tokens ports.Tokenizer) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		tokens:    tokens,
	}
}

// ChunkDocument walks the parsed sections when structure is available,
// otherwise falls back to a fixed-size token window over the whole content.
// Chunk IDs are assigned later, at persistence time.
func (c *Chunker) ChunkDocument(
	content string,
	sections []domain.Section,
	docCtx domain.ChunkContext,
	strategy domain.ChunkingStrategy,
) []domain.Chunk {
	if strategy == domain.StrategySectionBased && len(sections) > 0 {
		return c.chunkBySections(sections, docCtx)
	}
	return c.chunkFixedSize(content, docCtx)
}

func (c *Chunker) chunkBySections(sections []domain.Section, docCtx domain.ChunkContext) []domain.Chunk {
	var chunks []domain.Chunk
	index := 0
	var headingPath []string

	for _, section := range sections {
		if strings.TrimSpace(section.Content) == "" {
			continue
		}

		level := section.Level
		if level < 1 {
			level = 1
		}
		// Breadcrumb stack: a level-N heading replaces everything at or
		// below level N.
		if level <= len(headingPath) {
			headingPath = headingPath[:level-1]
		}
		headingPath = append(headingPath, section.Heading)

		sectionTokens := c.tokens.Count(section.Content)
		if sectionTokens <= c.chunkSize {
			chunks = append(chunks, c.newChunk(docCtx, chunkSpec{
				index:      index,
				content:    strings.TrimSpace(section.Content),
				tokenCount: sectionTokens,
				path:       headingPath,
				section:    section.Heading,
				page:       section.Page,
			}))
			index++
			continue
		}

		for _, split := range c.splitLargeSection(section.Content, headingPath, section.Page, docCtx) {
			split.Index = index
			chunks = append(chunks, split)
			index++
		}
	}

	return chunks
}

// splitLargeSection packs paragraphs into chunks of at most chunkSize tokens.
// Each flush re-seeds the next buffer with trailing paragraphs whose combined
// token length fits the overlap budget, so context survives the boundary.
// A single paragraph longer than chunkSize stays atomic.
func (c *Chunker) splitLargeSection(
	content string,
	headingPath []string,
	page int,
	docCtx domain.ChunkContext,
) []domain.Chunk {
	section := ""
	if len(headingPath) > 0 {
		section = headingPath[len(headingPath)-1]
	}

	var out []domain.Chunk
	var current []string
	currentTokens := 0

	for _, para := range splitParagraphs(content) {
		paraTokens := c.tokens.Count(para)

		if currentTokens+paraTokens <= c.chunkSize {
			current = append(current, para)
			currentTokens += paraTokens
			continue
		}

		if len(current) > 0 {
			out = append(out, c.newChunk(docCtx, chunkSpec{
				content:    strings.Join(current, "\n\n"),
				tokenCount: currentTokens,
				path:       headingPath,
				section:    section,
				page:       page,
				isSplit:    true,
			}))
		}

		overlapTokens := 0
		var overlapParas []string
		for i := len(current) - 1; i >= 0; i-- {
			pTokens := c.tokens.Count(current[i])
			if overlapTokens+pTokens > c.overlap {
				break
			}
			overlapParas = append([]string{current[i]}, overlapParas...)
			overlapTokens += pTokens
		}

		current = append(overlapParas, para)
		currentTokens = overlapTokens + paraTokens
	}

	if len(current) > 0 {
		text := strings.Join(current, "\n\n")
		out = append(out, c.newChunk(docCtx, chunkSpec{
			content:    text,
			tokenCount: c.tokens.Count(text),
			path:       headingPath,
			section:    section,
			page:       page,
			isSplit:    true,
		}))
	}

	return out
}

func (c *Chunker) chunkFixedSize(content string, docCtx domain.ChunkContext) []domain.Chunk {
	tokens := c.tokens.Encode(content)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	index := 0

	for start < len(tokens) {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]

		label := fmt.Sprintf("Chunk %d", index+1)
		chunk := c.newChunk(docCtx, chunkSpec{
			index:      index,
			content:    c.tokens.Decode(window),
			tokenCount: len(window),
			section:    label,
		})
		chunk.Metadata.SourceAnchor = fmt.Sprintf("chunk-%d", index+1)
		chunks = append(chunks, chunk)

		if end == len(tokens) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
		index++
	}

	return chunks
}

type chunkSpec struct {
	index      int
	content    string
	tokenCount int
	path       []string
	section    string
	page       int
	isSplit    bool
}

func (c *Chunker) newChunk(docCtx domain.ChunkContext, spec chunkSpec) domain.Chunk {
	path := make([]string, len(spec.path))
	copy(path, spec.path)

	return domain.Chunk{
		DocumentID: docCtx.DocumentID,
		TenantID:   docCtx.TenantID,
		ClientID:   docCtx.ClientID,
		Index:      spec.index,
		Content:    spec.content,
		TokenCount: spec.tokenCount,
		Metadata: domain.ChunkMetadata{
			HeadingPath:  path,
			Section:      spec.section,
			Page:         spec.page,
			SourceAnchor: sourceAnchor(spec.path, spec.page),
			IsSplit:      spec.isSplit,
		},
	}
}

func splitParagraphs(content string) []string {
	raw := paragraphBreak.Split(content, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sourceAnchor builds the citation-friendly anchor: slugged heading path
// joined with '/', then "-pN" when a page is known, "content" when neither
// exists.
func sourceAnchor(headingPath []string, page int) string {
	var parts []string

	if len(headingPath) > 0 {
		segments := make([]string, 0, len(headingPath))
		for _, heading := range headingPath {
			segments = append(segments, slugify(heading))
		}
		parts = append(parts, strings.Join(segments, "/"))
	}

	if page > 0 {
		parts = append(parts, fmt.Sprintf("p%d", page))
	}

	if len(parts) == 0 {
		return "content"
	}
	return strings.Join(parts, "-")
}

func slugify(heading string) string {
	var b strings.Builder
	for _, r := range heading {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	slug := strings.TrimSpace(b.String())
	slug = strings.ReplaceAll(slug, " ", "-")
	return strings.ToLower(slug)
}
