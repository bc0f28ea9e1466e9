package domain

import "time"

// AuditRecord is the immutable compliance artifact binding one query to the
// evidence it retrieved and the answer it produced. The store is append-only.
type AuditRecord struct {
	ID                string               `json:"id"`
	ConversationID    string               `json:"conversation_id"`
	Query             string               `json:"query"`
	Workflow          Intent               `json:"workflow"`
	RetrievedChunkIDs []string             `json:"retrieved_chunk_ids"`
	RetrievalScores   map[string]ScorePair `json:"retrieval_scores"`
	ModelName         string               `json:"model_name"`
	ResponseText      string               `json:"response_text"`
	Citations         []Citation           `json:"citations"`
	LatencyMS         int64                `json:"latency_ms"`
	Flags             Flags                `json:"flags"`
	ConfidenceLevel   Confidence           `json:"confidence_level"`
	CreatedAt         time.Time            `json:"created_at"`
}
