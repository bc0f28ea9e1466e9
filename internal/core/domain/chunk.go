package domain

type ChunkingStrategy string

const (
	StrategySectionBased ChunkingStrategy = "section_based"
	StrategyFixedSize    ChunkingStrategy = "fixed_size"
)

// ChunkMetadata carries the positional context that makes a chunk citable.
type ChunkMetadata struct {
	HeadingPath  []string `json:"heading_path"`
	Section      string   `json:"section"`
	Page         int      `json:"page,omitempty"`
	SourceAnchor string   `json:"source_anchor"`
	IsSplit      bool     `json:"is_split,omitempty"`
}

// Chunk is a citation-addressable unit of document text. Chunks are never
// mutated after creation; Index is strictly increasing within a document.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	TenantID   string        `json:"tenant_id"`
	ClientID   string        `json:"client_id,omitempty"`
	Index      int           `json:"chunk_index"`
	Content    string        `json:"content"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkContext is the document-level identity stamped onto every chunk.
type ChunkContext struct {
	DocumentID string
	TenantID   string
	ClientID   string
	DocTitle   string
}
