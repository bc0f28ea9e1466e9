package domain

type Intent string

const (
	IntentQA      Intent = "qa"
	IntentSummary Intent = "summary"
	IntentRisk    Intent = "risk"
	IntentEmail   Intent = "email"
)

func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentQA, IntentSummary, IntentRisk, IntentEmail:
		return true
	}
	return false
}

type WorkflowStage string

const (
	StageIntentRouting      WorkflowStage = "INTENT_ROUTING"
	StageRetrieving         WorkflowStage = "RETRIEVING"
	StageEvidenceCheck      WorkflowStage = "EVIDENCE_CHECK"
	StageGenerating         WorkflowStage = "GENERATING"
	StageRefusing           WorkflowStage = "REFUSING"
	StageCitationExtraction WorkflowStage = "CITATION_EXTRACTION"
	StageAuditLogging       WorkflowStage = "AUDIT_LOGGING"
	StageDone               WorkflowStage = "DONE"
)

// ScorePair records both retrieval scores kept for a chunk in the audit trail.
type ScorePair struct {
	VectorScore float64 `json:"vector_score"`
	RerankScore float64 `json:"rerank_score"`
}

// Flags are the compliance markers accumulated by the workflow.
type Flags struct {
	LowEvidence           bool       `json:"low_evidence,omitempty"`
	AdviceRefused         bool       `json:"advice_refused,omitempty"`
	PossibleHallucination bool       `json:"possible_hallucination,omitempty"`
	GenerationError       bool       `json:"generation_error,omitempty"`
	Confidence            Confidence `json:"confidence,omitempty"`
}

type Citation struct {
	ChunkID  string `json:"chunk_id"`
	DocTitle string `json:"doc_title"`
	Section  string `json:"section"`
	Quote    string `json:"quote"`
	Page     int    `json:"page,omitempty"`
	URL      string `json:"url,omitempty"`
}

// WorkflowState is the per-query accumulator passed between stages by value.
// Each stage consumes one state and produces the next; stages never read
// ahead or write out of order, and independent queries share nothing.
type WorkflowState struct {
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id,omitempty"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`

	Intent        Intent   `json:"intent"`
	DocTypes      []string `json:"doc_types,omitempty"`
	CompanyFilter string   `json:"company_filter,omitempty"`

	Stage           WorkflowStage        `json:"stage"`
	RetrievedChunks []RetrievedChunk     `json:"retrieved_chunks"`
	RetrievalScores map[string]ScorePair `json:"retrieval_scores"`
	Evidence        EvidenceQuality      `json:"evidence_quality"`
	Sufficient      bool                 `json:"has_sufficient_evidence"`

	Draft     string     `json:"-"`
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`

	Flags     Flags  `json:"flags"`
	ModelName string `json:"model_name"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}
