package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

const defaultRetrievalTopK = 30

// Retriever answers tenant-scoped similarity queries. Every entry point
// validates the tenant id before any embedding or index call is made, so a
// missing tenant never reaches a provider.
type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	lexical  ports.LexicalIndex
	topK     int
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, topK int) *Retriever {
	if topK <= 0 {
		topK = defaultRetrievalTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// WithLexicalIndex enables the hybrid keyword channel. Lexical results are
// interleaved with vector results; without it Retrieve is vector-only.
func (r *Retriever) WithLexicalIndex(lexical ports.LexicalIndex) *Retriever {
	r.lexical = lexical
	return r
}

func (r *Retriever) Retrieve(ctx context.Context, query string, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(filter.TenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "retrieve", fmt.Errorf("search filter has no tenant id"))
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	dense, err := r.index.SimilaritySearch(ctx, vector, filter, r.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if r.lexical == nil {
		return dense, nil
	}

	sparse, err := r.lexical.KeywordSearch(ctx, query, filter, r.topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	merged := MergeAndDedupe(dense, sparse)
	if len(merged) > r.topK {
		merged = merged[:r.topK]
	}
	return merged, nil
}

// RetrieveByIDs fetches exact chunks for audit replay. No similarity scoring
// is involved; the index reports a fixed score of 1.0 per chunk.
func (r *Retriever) RetrieveByIDs(ctx context.Context, ids []string, tenantID string) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "retrieve by ids", fmt.Errorf("empty tenant id"))
	}
	if len(ids) == 0 {
		return nil, nil
	}
	chunks, err := r.index.GetByIDs(ctx, ids, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	return chunks, nil
}

// MergeAndDedupe interleaves two ranked result lists one item at a time,
// skipping chunk ids already taken, then appends whichever list has items
// left. Relative order within each source list is preserved.
func MergeAndDedupe(a, b []domain.RetrievedChunk) []domain.RetrievedChunk {
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]domain.RetrievedChunk, 0, len(a)+len(b))

	take := func(c domain.RetrievedChunk) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		take(a[i])
		i++
		take(b[j])
		j++
	}
	for ; i < len(a); i++ {
		take(a[i])
	}
	for ; j < len(b); j++ {
		take(b[j])
	}
	return merged
}
