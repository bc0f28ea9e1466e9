package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

// Client stores chunk vectors in a Qdrant collection and answers
// tenant-scoped similarity searches. The tenant predicate is part of every
// query filter; rows from other tenants are unreachable by construction.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk %d has no id", i)
		}
		points = append(points, point{
			ID:     chunk.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"document_id":   chunk.DocumentID,
				"tenant_id":     chunk.TenantID,
				"client_id":     chunk.ClientID,
				"chunk_index":   chunk.Index,
				"content":       chunk.Content,
				"token_count":   chunk.TokenCount,
				"heading_path":  chunk.Metadata.HeadingPath,
				"section":       chunk.Metadata.Section,
				"page":          chunk.Metadata.Page,
				"source_anchor": chunk.Metadata.SourceAnchor,
				"is_split":      chunk.Metadata.IsSplit,
				"doc_title":     doc.Title,
				"source_type":   doc.SourceType,
				"source_url":    doc.SourceURL,
				"company_name":  doc.CompanyName,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) SimilaritySearch(
	ctx context.Context,
	queryVector []float32,
	filter domain.SearchFilter,
	limit int,
) ([]domain.RetrievedChunk, error) {
	must, err := buildFilterMust(filter)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}

	var searchResp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := chunkFromPayload(r.ID, r.Payload)
		chunk.Score = r.Score
		out = append(out, chunk)
	}
	return out, nil
}

// GetByIDs is the audit-replay path: direct tenant-filtered lookup, no
// scoring. The tenant predicate rides inside the scroll filter together with
// the id set.
func (c *Client) GetByIDs(ctx context.Context, ids []string, tenantID string) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "qdrant get by ids", fmt.Errorf("empty tenant id"))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"has_id": ids},
				{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
			},
		},
		"with_payload": true,
		"limit":        len(ids),
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      string         `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &scrollResp, "scroll"); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.RetrievedChunk, len(scrollResp.Result.Points))
	for _, p := range scrollResp.Result.Points {
		chunk := chunkFromPayload(p.ID, p.Payload)
		chunk.Score = 1.0
		byID[p.ID] = chunk
	}

	// Preserve the requested id order.
	out := make([]domain.RetrievedChunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// buildFilterMust assembles the ANDed predicate set. The tenant clause is
// non-optional; refusing to build a filter without it is what makes
// cross-tenant reads impossible rather than merely unlikely.
func buildFilterMust(filter domain.SearchFilter) ([]map[string]any, error) {
	if strings.TrimSpace(filter.TenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "qdrant search", fmt.Errorf("empty tenant id"))
	}

	must := []map[string]any{
		{"key": "tenant_id", "match": map[string]any{"value": filter.TenantID}},
	}
	if filter.ClientID != "" {
		must = append(must, map[string]any{
			"key": "client_id", "match": map[string]any{"value": filter.ClientID},
		})
	}
	if len(filter.DocTypes) > 0 {
		must = append(must, map[string]any{
			"key": "source_type", "match": map[string]any{"any": filter.DocTypes},
		})
	}
	if filter.Company != "" {
		must = append(must, map[string]any{
			"key": "company_name", "match": map[string]any{"text": filter.Company},
		})
	}
	return must, nil
}

func chunkFromPayload(id string, payload map[string]any) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ID:         id,
		DocumentID: getStringPayload(payload, "document_id"),
		TenantID:   getStringPayload(payload, "tenant_id"),
		ClientID:   getStringPayload(payload, "client_id"),
		Content:    getStringPayload(payload, "content"),
		DocTitle:   getStringPayload(payload, "doc_title"),
		SourceURL:  getStringPayload(payload, "source_url"),
		Metadata: domain.ChunkMetadata{
			HeadingPath:  getStringSlicePayload(payload, "heading_path"),
			Section:      getStringPayload(payload, "section"),
			Page:         getIntPayload(payload, "page"),
			SourceAnchor: getStringPayload(payload, "source_anchor"),
			IsSplit:      getBoolPayload(payload, "is_split"),
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := newJSONRequest(ctx, http.MethodPut, url, reqBody)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 when the collection already exists.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return statusError("ensure collection", resp)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	req, err := newJSONRequest(ctx, method, url, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getStringSlicePayload(payload map[string]any, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func getBoolPayload(payload map[string]any, key string) bool {
	v, ok := payload[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
