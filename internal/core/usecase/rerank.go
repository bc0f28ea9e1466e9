package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

// rerankStrategy orders candidate chunks for a query. Implementations must
// not fail: a strategy that cannot produce model scores falls back to an
// ordering it can always compute.
type rerankStrategy interface {
	rank(ctx context.Context, query string, candidates []domain.RetrievedChunk, topN int) []domain.RerankResult
}

// Reranker re-orders retrieval candidates before generation. The strategy is
// fixed at construction: with a rerank model it cross-encodes, without one it
// keeps retrieval-score order. Callers cannot tell which path produced the
// result, which keeps the workflow insensitive to provider outages.
type Reranker struct {
	strategy rerankStrategy
}

func NewReranker(model ports.RerankModel, logger *slog.Logger) *Reranker {
	if model == nil {
		return &Reranker{strategy: scoreOrderStrategy{}}
	}
	return &Reranker{strategy: &modelStrategy{
		model:    model,
		fallback: scoreOrderStrategy{},
		logger:   logger,
	}}
}

func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievedChunk, topN int) []domain.RerankResult {
	if len(candidates) == 0 {
		return nil
	}
	if topN <= 0 {
		topN = len(candidates)
	}
	return r.strategy.rank(ctx, query, candidates, topN)
}

// modelStrategy scores every (query, chunk) pair with a cross-encoder and
// degrades to score order when the provider fails.
type modelStrategy struct {
	model    ports.RerankModel
	fallback scoreOrderStrategy
	logger   *slog.Logger
}

func (s *modelStrategy) rank(ctx context.Context, query string, candidates []domain.RetrievedChunk, topN int) []domain.RerankResult {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Content
	}

	ranked, err := s.model.Rerank(ctx, query, documents, topN)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rerank model failed, using retrieval-score order", "error", err)
		}
		return s.fallback.rank(ctx, query, candidates, topN)
	}

	results := make([]domain.RerankResult, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		chunk := candidates[r.Index]
		results = append(results, domain.RerankResult{
			Chunk:         chunk,
			RerankScore:   r.Score,
			OriginalScore: chunk.Score,
		})
	}
	if len(results) == 0 {
		return s.fallback.rank(ctx, query, candidates, topN)
	}
	return results
}

// scoreOrderStrategy keeps retrieval order by score; the retrieval score
// doubles as the rerank score so downstream thresholds still apply.
type scoreOrderStrategy struct{}

func (scoreOrderStrategy) rank(_ context.Context, _ string, candidates []domain.RetrievedChunk, topN int) []domain.RerankResult {
	ordered := make([]domain.RetrievedChunk, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	if topN < len(ordered) {
		ordered = ordered[:topN]
	}

	results := make([]domain.RerankResult, len(ordered))
	for i, c := range ordered {
		results[i] = domain.RerankResult{
			Chunk:         c,
			RerankScore:   c.Score,
			OriginalScore: c.Score,
		}
	}
	return results
}

// ComputeEvidenceQuality grades a reranked evidence set. The thresholds are
// deliberate: five strong chunks are enough to answer with conviction, three
// reasonable ones to answer with caveats, anything less forces the workflow
// to consider refusal.
func ComputeEvidenceQuality(results []domain.RerankResult) domain.EvidenceQuality {
	count := len(results)
	if count == 0 {
		return domain.EvidenceQuality{
			Confidence:  domain.ConfidenceLow,
			LowEvidence: true,
		}
	}

	var sum, top float64
	for _, r := range results {
		sum += r.RerankScore
		if r.RerankScore > top {
			top = r.RerankScore
		}
	}
	avg := sum / float64(count)

	confidence := domain.ConfidenceLow
	switch {
	case count >= 5 && avg >= 0.7:
		confidence = domain.ConfidenceHigh
	case count >= 3 && avg >= 0.5:
		confidence = domain.ConfidenceMedium
	}

	return domain.EvidenceQuality{
		EvidenceCount: count,
		AvgScore:      avg,
		TopScore:      top,
		Confidence:    confidence,
		LowEvidence:   count < 3,
	}
}
