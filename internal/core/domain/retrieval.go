package domain

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SearchFilter narrows a similarity search. TenantID is mandatory for every
// retrieval; the remaining fields are optional ANDed predicates.
type SearchFilter struct {
	TenantID string
	ClientID string
	DocTypes []string
	Company  string
}

type RetrievedChunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	TenantID   string        `json:"tenant_id"`
	ClientID   string        `json:"client_id,omitempty"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Score      float64       `json:"score"`
	DocTitle   string        `json:"doc_title,omitempty"`
	SourceURL  string        `json:"source_url,omitempty"`
}

type RerankResult struct {
	Chunk         RetrievedChunk `json:"chunk"`
	RerankScore   float64        `json:"rerank_score"`
	OriginalScore float64        `json:"original_score"`
}

// RankedDocument is one (input index, relevance) pair returned by a
// cross-encoder rerank provider.
type RankedDocument struct {
	Index int
	Score float64
}

type EvidenceQuality struct {
	EvidenceCount int        `json:"evidence_count"`
	AvgScore      float64    `json:"avg_score"`
	TopScore      float64    `json:"top_score"`
	Confidence    Confidence `json:"confidence"`
	LowEvidence   bool       `json:"low_evidence"`
}
