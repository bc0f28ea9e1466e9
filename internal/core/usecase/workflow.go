package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

const (
	defaultRerankTopK = 10

	intentMaxTokens   = 10
	generateMaxTokens = 2000
	generateTemp      = 0.3
)

var (
	citationRefPattern = regexp.MustCompile(`\[(\d+)\]`)
	sentenceSplit      = regexp.MustCompile(`[.!?]`)
	citationMarker     = regexp.MustCompile(`\[\d+\]`)
)

// WorkflowMetrics observes completed workflow runs.
type WorkflowMetrics interface {
	ObserveRun(intent string, confidence string, refused bool, seconds float64)
}

// Orchestrator runs the evidence-gated answer pipeline: intent routing,
// retrieval, evidence check, generation or refusal, citation extraction, and
// audit logging. State moves stage to stage by value; a run always ends in a
// terminal state even when a provider fails mid-pipeline.
type Orchestrator struct {
	router        ports.ChatModel
	generator     ports.ChatModel
	retriever     *Retriever
	reranker      *Reranker
	conversations ports.ConversationStore
	audit         ports.AuditStore
	logger        *slog.Logger
	metrics       WorkflowMetrics
	rerankTopK    int
}

func NewOrchestrator(
	router ports.ChatModel,
	generator ports.ChatModel,
	retriever *Retriever,
	reranker *Reranker,
	conversations ports.ConversationStore,
	audit ports.AuditStore,
	logger *slog.Logger,
	rerankTopK int,
) *Orchestrator {
	if rerankTopK <= 0 {
		rerankTopK = defaultRerankTopK
	}
	return &Orchestrator{
		router:        router,
		generator:     generator,
		retriever:     retriever,
		reranker:      reranker,
		conversations: conversations,
		audit:         audit,
		logger:        logger,
		rerankTopK:    rerankTopK,
	}
}

// WithMetrics attaches a run observer.
func (o *Orchestrator) WithMetrics(m WorkflowMetrics) *Orchestrator {
	o.metrics = m
	return o
}

func (o *Orchestrator) Run(ctx context.Context, req ports.QueryRequest) (domain.WorkflowState, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return domain.WorkflowState{}, domain.WrapError(domain.ErrTenantRequired, "run workflow", fmt.Errorf("query request has no tenant id"))
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.WorkflowState{}, domain.WrapError(domain.ErrInvalidInput, "run workflow", fmt.Errorf("empty query"))
	}

	start := time.Now()

	state := domain.WorkflowState{
		TenantID:       req.TenantID,
		ClientID:       req.ClientID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		DocTypes:       req.DocTypes,
		CompanyFilter:  req.CompanyFilter,
	}
	if state.ConversationID == "" {
		state.ConversationID = uuid.NewString()
	}

	state = o.routeIntent(ctx, state)
	state = o.retrieveEvidence(ctx, state)
	state = o.checkEvidence(state)
	if state.Sufficient {
		state = o.generate(ctx, state)
	} else {
		state = o.refuse(state)
	}
	state = o.extractCitations(state)
	state = o.recordAudit(ctx, state)
	state.Stage = domain.StageDone

	if o.metrics != nil {
		o.metrics.ObserveRun(string(state.Intent), string(state.Flags.Confidence), state.Flags.AdviceRefused, time.Since(start).Seconds())
	}
	o.logger.Info("workflow complete",
		"conversation_id", state.ConversationID,
		"intent", state.Intent,
		"confidence", state.Flags.Confidence,
		"evidence_count", state.Evidence.EvidenceCount,
		"refused", state.Flags.AdviceRefused,
		"latency_ms", state.LatencyMS,
	)
	return state, nil
}

// routeIntent classifies the query into one of the supported workflows.
// Any routing failure falls back to qa; a misrouted query still gets an
// evidence-gated answer.
func (o *Orchestrator) routeIntent(ctx context.Context, state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageIntentRouting

	raw, err := o.router.Chat(ctx, "", buildIntentPrompt(state.Query), intentMaxTokens, 0)
	if err != nil {
		o.logger.Warn("intent routing failed, defaulting to qa", "error", err)
		state.Intent = domain.IntentQA
		return state
	}

	intent := strings.ToLower(strings.TrimSpace(raw))
	if domain.ValidIntent(intent) {
		state.Intent = domain.Intent(intent)
	} else {
		state.Intent = domain.IntentQA
	}
	return state
}

func (o *Orchestrator) retrieveEvidence(ctx context.Context, state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageRetrieving
	start := time.Now()

	filter := domain.SearchFilter{
		TenantID: state.TenantID,
		ClientID: state.ClientID,
		DocTypes: state.DocTypes,
		Company:  state.CompanyFilter,
	}

	candidates, err := o.retriever.Retrieve(ctx, state.Query, filter)
	if err != nil {
		o.logger.Error("retrieval failed", "conversation_id", state.ConversationID, "error", err)
		state.Error = err.Error()
		state.RetrievedChunks = nil
		state.LatencyMS += time.Since(start).Milliseconds()
		return state
	}

	reranked := o.reranker.Rerank(ctx, state.Query, candidates, o.rerankTopK)

	state.RetrievedChunks = make([]domain.RetrievedChunk, 0, len(reranked))
	state.RetrievalScores = make(map[string]domain.ScorePair, len(reranked))
	for _, r := range reranked {
		chunk := r.Chunk
		chunk.Score = r.RerankScore
		state.RetrievedChunks = append(state.RetrievedChunks, chunk)
		state.RetrievalScores[r.Chunk.ID] = domain.ScorePair{
			VectorScore: r.OriginalScore,
			RerankScore: r.RerankScore,
		}
	}
	state.Evidence = ComputeEvidenceQuality(reranked)

	state.LatencyMS += time.Since(start).Milliseconds()
	return state
}

// checkEvidence decides whether retrieval produced enough support to answer.
// Either three chunks at medium-or-better confidence, or a single chunk at
// high confidence, opens the generation path.
func (o *Orchestrator) checkEvidence(state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageEvidenceCheck

	count := len(state.RetrievedChunks)
	conf := state.Evidence.Confidence
	if conf == "" {
		conf = domain.ConfidenceLow
	}

	state.Sufficient = (count >= 3 && (conf == domain.ConfidenceHigh || conf == domain.ConfidenceMedium)) ||
		(count >= 1 && conf == domain.ConfidenceHigh)

	if !state.Sufficient {
		state.Flags.LowEvidence = true
	}
	state.Flags.Confidence = conf
	return state
}

func (o *Orchestrator) generate(ctx context.Context, state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageGenerating
	start := time.Now()

	sources := formatSources(state.RetrievedChunks)
	userPrompt := buildUserPrompt(state.Intent, sources, state.Query)

	draft, err := o.generator.Chat(ctx, systemPrompt, userPrompt, generateMaxTokens, generateTemp)
	if err != nil {
		o.logger.Error("generation failed", "conversation_id", state.ConversationID, "error", err)
		state.Draft = fmt.Sprintf("Error generating response: %v", err)
		state.Error = err.Error()
		state.Flags.GenerationError = true
	} else {
		state.Draft = draft
		state.ModelName = o.generator.ModelName()
	}

	state.LatencyMS += time.Since(start).Milliseconds()
	return state
}

// refuse substitutes the fixed refusal text. The wording never varies: a
// templated refusal cannot leak partial or hallucinated content.
func (o *Orchestrator) refuse(state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageRefusing
	state.Draft = refusalResponse
	state.Flags.AdviceRefused = true
	return state
}

// extractCitations resolves bracketed source references in the draft back to
// the chunks they point to and flags drafts with too many substantial uncited
// sentences.
func (o *Orchestrator) extractCitations(state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageCitationExtraction

	used := make(map[int]bool)
	for _, m := range citationRefPattern.FindAllStringSubmatch(state.Draft, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			used[n] = true
		}
	}

	state.Citations = make([]domain.Citation, 0, len(used))
	for i, chunk := range state.RetrievedChunks {
		if !used[i+1] {
			continue
		}
		// Quotes land in the immutable audit record, so truncation must cut
		// on a rune boundary, never mid-codepoint.
		quote := chunk.Content
		if utf8.RuneCountInString(quote) > 200 {
			quote = string([]rune(quote)[:200]) + "..."
		}
		title := chunk.DocTitle
		if title == "" {
			title = "Unknown"
		}
		state.Citations = append(state.Citations, domain.Citation{
			ChunkID:  chunk.ID,
			DocTitle: title,
			Section:  chunk.Metadata.Section,
			Quote:    quote,
			Page:     chunk.Metadata.Page,
			URL:      chunk.SourceURL,
		})
	}

	state.Response = state.Draft

	uncited := 0
	for _, sentence := range sentenceSplit.Split(state.Draft, -1) {
		if utf8.RuneCountInString(sentence) > 50 && !citationMarker.MatchString(sentence) {
			uncited++
		}
	}
	if uncited > 3 {
		state.Flags.PossibleHallucination = true
	}
	return state
}

// recordAudit persists the compliance record. Audit failures are logged and
// swallowed: the answer was already produced and the caller still gets it.
func (o *Orchestrator) recordAudit(ctx context.Context, state domain.WorkflowState) domain.WorkflowState {
	state.Stage = domain.StageAuditLogging

	conv := domain.Conversation{
		ID:       state.ConversationID,
		TenantID: state.TenantID,
		UserID:   state.UserID,
		ClientID: state.ClientID,
	}
	// The audit record stands on its own: a failed conversation upsert is
	// logged, and the append is still attempted.
	if err := o.conversations.Ensure(ctx, conv); err != nil {
		o.logger.Error("ensure conversation failed", "conversation_id", state.ConversationID, "error", err)
	}

	chunkIDs := make([]string, len(state.RetrievedChunks))
	for i, c := range state.RetrievedChunks {
		chunkIDs[i] = c.ID
	}

	record := domain.AuditRecord{
		ID:                uuid.NewString(),
		ConversationID:    state.ConversationID,
		Query:             state.Query,
		Workflow:          state.Intent,
		RetrievedChunkIDs: chunkIDs,
		RetrievalScores:   state.RetrievalScores,
		ModelName:         state.ModelName,
		ResponseText:      state.Response,
		Citations:         state.Citations,
		LatencyMS:         state.LatencyMS,
		Flags:             state.Flags,
		ConfidenceLevel:   state.Flags.Confidence,
		CreatedAt:         time.Now().UTC(),
	}
	if err := o.audit.Append(ctx, record); err != nil {
		o.logger.Error("audit append failed", "conversation_id", state.ConversationID, "error", err)
	}
	return state
}
