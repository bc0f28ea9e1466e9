package ports

import (
	"context"
	"io"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindBySHA256(ctx context.Context, tenantID, sha256 string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, chunkCount int, errMessage string) error
}

// ObjectStorage stores the parsed-document payload between upload and
// background processing.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// Tokenizer is the pluggable token-counting capability used by the chunker.
type Tokenizer interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker segments a parsed document into citation-addressable chunks.
// Identical input and configuration must produce an identical chunk list.
type Chunker interface {
	ChunkDocument(content string, sections []domain.Section, docCtx domain.ChunkContext, strategy domain.ChunkingStrategy) []domain.Chunk
}

// Embedder builds vectors for chunk batches and query text. Embed must
// preserve input order regardless of provider response order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel is the generative-model capability.
type ChatModel interface {
	Chat(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
	ModelName() string
}

// RerankModel scores (query, document) relevance with a cross-encoder.
type RerankModel interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]domain.RankedDocument, error)
}

// VectorIndex stores chunk vectors and performs tenant-scoped similarity
// search. Implementations enforce the tenant predicate inside the query,
// never by post-filtering.
type VectorIndex interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	SimilaritySearch(ctx context.Context, queryVector []float32, filter domain.SearchFilter, limit int) ([]domain.RetrievedChunk, error)
	GetByIDs(ctx context.Context, ids []string, tenantID string) ([]domain.RetrievedChunk, error)
}

// LexicalIndex is the optional keyword channel for hybrid retrieval.
type LexicalIndex interface {
	KeywordSearch(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.RetrievedChunk, error)
}

// ConversationStore guarantees a conversation row exists for audit binding.
type ConversationStore interface {
	Ensure(ctx context.Context, conv domain.Conversation) error
}

// AuditStore is write-once, append-only.
type AuditStore interface {
	Append(ctx context.Context, record domain.AuditRecord) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.AuditRecord, error)
}
