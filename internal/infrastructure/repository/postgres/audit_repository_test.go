package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

func newAuditRepoWithMock(t *testing.T) (*AuditRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &AuditRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestAppendInsertsRecord(t *testing.T) {
	repo, mock, done := newAuditRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs(
			"rec-1", "conv-1", "How did revenue develop?", "qa",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "gpt-4o", "Revenue grew [1].",
			sqlmock.AnyArg(), int64(340), sqlmock.AnyArg(), "medium", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := domain.AuditRecord{
		ID:                "rec-1",
		ConversationID:    "conv-1",
		Query:             "How did revenue develop?",
		Workflow:          domain.IntentQA,
		RetrievedChunkIDs: []string{"c1", "c2"},
		RetrievalScores:   map[string]domain.ScorePair{"c1": {VectorScore: 0.8, RerankScore: 0.9}},
		ModelName:         "gpt-4o",
		ResponseText:      "Revenue grew [1].",
		Citations:         []domain.Citation{{ChunkID: "c1", DocTitle: "Acme 10-K"}},
		LatencyMS:         340,
		Flags:             domain.Flags{Confidence: domain.ConfidenceMedium},
		ConfidenceLevel:   domain.ConfidenceMedium,
		CreatedAt:         time.Now().UTC(),
	}
	if err := repo.Append(context.Background(), record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByConversationDecodesRecord(t *testing.T) {
	repo, mock, done := newAuditRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	columns := []string{
		"id", "conversation_id", "query", "workflow", "retrieved_chunk_ids", "retrieval_scores",
		"model_name", "response_text", "citations", "latency_ms", "flags", "confidence_level", "created_at",
	}
	mock.ExpectQuery("SELECT id, conversation_id, query, workflow").
		WithArgs("conv-1", 50).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"rec-1", "conv-1", "q", "risk",
			[]byte(`["c1"]`), []byte(`{"c1":{"vector_score":0.8,"rerank_score":0.9}}`),
			"gpt-4o", "Risks include [1].", []byte(`[{"chunk_id":"c1","doc_title":"Acme 10-K","section":"","quote":"x"}]`),
			int64(200), []byte(`{"confidence":"medium"}`), "medium", now,
		))

	records, err := repo.ListByConversation(context.Background(), "conv-1", 0)
	if err != nil {
		t.Fatalf("ListByConversation() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	record := records[0]
	if record.Workflow != domain.IntentRisk || record.ConfidenceLevel != domain.ConfidenceMedium {
		t.Fatalf("enum fields not decoded: %+v", record)
	}
	if len(record.RetrievedChunkIDs) != 1 || record.RetrievedChunkIDs[0] != "c1" {
		t.Fatalf("chunk ids not decoded: %v", record.RetrievedChunkIDs)
	}
	pair := record.RetrievalScores["c1"]
	if pair.VectorScore != 0.8 || pair.RerankScore != 0.9 {
		t.Fatalf("scores not decoded: %+v", pair)
	}
	if len(record.Citations) != 1 || record.Citations[0].DocTitle != "Acme 10-K" {
		t.Fatalf("citations not decoded: %+v", record.Citations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureUpsertsConversation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := &ConversationRepository{db: db}

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("conv-1", "tenant-1", "client-1", "user-1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Ensure(context.Background(), domain.Conversation{
		ID:       "conv-1",
		TenantID: "tenant-1",
		ClientID: "client-1",
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
