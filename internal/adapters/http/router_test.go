package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

type ingestFake struct {
	doc *domain.Document
	err error

	gotTenant string
	gotClient string
}

func (f *ingestFake) Ingest(_ context.Context, _ domain.ParsedDocument, tenantID, clientID string) (*domain.Document, error) {
	f.gotTenant = tenantID
	f.gotClient = clientID
	return f.doc, f.err
}

type workflowFake struct {
	state domain.WorkflowState
	err   error

	gotReq ports.QueryRequest
}

func (f *workflowFake) Run(_ context.Context, req ports.QueryRequest) (domain.WorkflowState, error) {
	f.gotReq = req
	return f.state, f.err
}

type docsFake struct {
	doc *domain.Document
	err error
}

func (f *docsFake) GetByID(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}

type auditFake struct {
	records []domain.AuditRecord
	err     error

	gotConversation string
	gotLimit        int
}

func (f *auditFake) ListByConversation(_ context.Context, conversationID string, limit int) ([]domain.AuditRecord, error) {
	f.gotConversation = conversationID
	f.gotLimit = limit
	return f.records, f.err
}

func newTestRouter(ingestor ports.DocumentIngestor, workflow ports.QueryWorkflow, documents ports.DocumentReader, audit ports.AuditReader) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(ingestor, workflow, documents, audit, nil, logger).Handler()
}

func TestIngestDocumentAccepted(t *testing.T) {
	ingestor := &ingestFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}}
	handler := newTestRouter(ingestor, &workflowFake{}, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{
		"tenant_id": "tenant-1",
		"client_id": "client-1",
		"document":  map[string]any{"content": "text", "title": "Doc", "source_type": "10-K"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if ingestor.gotTenant != "tenant-1" || ingestor.gotClient != "client-1" {
		t.Errorf("tenant/client not forwarded: %s/%s", ingestor.gotTenant, ingestor.gotClient)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Error("request id header not set")
	}
}

func TestIngestDocumentDuplicateMapsTo409(t *testing.T) {
	existing := &domain.Document{ID: "doc-1", Status: domain.StatusReady}
	ingestor := &ingestFake{
		doc: existing,
		err: domain.WrapError(domain.ErrDuplicateDocument, "ingest", errors.New("already ingested")),
	}
	handler := newTestRouter(ingestor, &workflowFake{}, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{"tenant_id": "tenant-1", "document": map[string]any{"content": "x"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	var body struct {
		Document *domain.Document `json:"document"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Document == nil || body.Document.ID != "doc-1" {
		t.Errorf("existing document not included in conflict body: %+v", body.Document)
	}
}

func TestIngestDocumentMissingTenantMapsTo400(t *testing.T) {
	ingestor := &ingestFake{err: domain.WrapError(domain.ErrTenantRequired, "ingest", errors.New("empty tenant id"))}
	handler := newTestRouter(ingestor, &workflowFake{}, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{"document": map[string]any{"content": "x"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	docs := &docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id missing"))}
	handler := newTestRouter(&ingestFake{}, &workflowFake{}, docs, &auditFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestChatQueryReturnsWorkflowState(t *testing.T) {
	workflow := &workflowFake{state: domain.WorkflowState{
		ConversationID: "conv-1",
		Intent:         domain.IntentQA,
		Response:       "Revenue grew [1].",
		Citations:      []domain.Citation{{ChunkID: "c1", DocTitle: "Acme 10-K"}},
		Evidence:       domain.EvidenceQuality{EvidenceCount: 3, Confidence: domain.ConfidenceMedium},
		Flags:          domain.Flags{Confidence: domain.ConfidenceMedium},
		ModelName:      "gpt-4o",
		LatencyMS:      412,
	}}
	handler := newTestRouter(&ingestFake{}, workflow, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{
		"tenant_id": "tenant-1",
		"user_id":   "user-1",
		"query":     "How did revenue develop?",
		"doc_types": []string{"10-K"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if workflow.gotReq.TenantID != "tenant-1" || len(workflow.gotReq.DocTypes) != 1 {
		t.Errorf("request not forwarded: %+v", workflow.gotReq)
	}

	var body chatQueryResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ConversationID != "conv-1" || body.Response != "Revenue grew [1]." {
		t.Errorf("unexpected body: %+v", body)
	}
	if len(body.Citations) != 1 || body.Evidence.Confidence != domain.ConfidenceMedium {
		t.Errorf("citations/evidence not serialized: %+v", body)
	}
}

func TestChatQueryMissingTenantMapsTo400(t *testing.T) {
	workflow := &workflowFake{err: domain.WrapError(domain.ErrTenantRequired, "run workflow", errors.New("no tenant"))}
	handler := newTestRouter(&ingestFake{}, workflow, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{"query": "q"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatQueryTemporaryErrorMapsTo503(t *testing.T) {
	workflow := &workflowFake{err: domain.WrapError(domain.ErrTemporary, "run workflow", errors.New("circuit open"))}
	handler := newTestRouter(&ingestFake{}, workflow, &docsFake{}, &auditFake{})

	payload, _ := json.Marshal(map[string]any{"tenant_id": "tenant-1", "query": "q"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestListAuditRecords(t *testing.T) {
	audit := &auditFake{records: []domain.AuditRecord{{ID: "rec-1", ConversationID: "conv-1"}}}
	handler := newTestRouter(&ingestFake{}, &workflowFake{}, &docsFake{}, audit)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/conv-1?limit=10", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if audit.gotConversation != "conv-1" || audit.gotLimit != 10 {
		t.Errorf("query not forwarded: %s limit=%d", audit.gotConversation, audit.gotLimit)
	}

	var body struct {
		Records []domain.AuditRecord `json:"records"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].ID != "rec-1" {
		t.Errorf("unexpected records: %+v", body.Records)
	}
}

func TestListAuditRecordsRejectsBadLimit(t *testing.T) {
	handler := newTestRouter(&ingestFake{}, &workflowFake{}, &docsFake{}, &auditFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/conv-1?limit=nope", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&ingestFake{}, &workflowFake{}, &docsFake{}, &auditFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/query", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&ingestFake{}, &workflowFake{}, &docsFake{}, &auditFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
