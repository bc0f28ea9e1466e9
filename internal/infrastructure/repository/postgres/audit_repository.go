package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

// AuditRepository is append-only by contract: no update or delete statement
// exists anywhere in this package, and none may be added.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083103)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	query TEXT NOT NULL,
	workflow TEXT NOT NULL,
	retrieved_chunk_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	retrieval_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
	model_name TEXT,
	response_text TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	flags JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence_level TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_conversation ON audit_records(conversation_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	chunkIDs, err := json.Marshal(record.RetrievedChunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	scores, err := json.Marshal(record.RetrievalScores)
	if err != nil {
		return fmt.Errorf("marshal retrieval scores: %w", err)
	}
	citations, err := json.Marshal(record.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	flags, err := json.Marshal(record.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_records (
	id, conversation_id, query, workflow, retrieved_chunk_ids, retrieval_scores, model_name, response_text, citations, latency_ms, flags, confidence_level, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		record.ID, record.ConversationID, record.Query, string(record.Workflow), chunkIDs, scores,
		record.ModelName, record.ResponseText, citations, record.LatencyMS, flags,
		string(record.ConfidenceLevel), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, query, workflow, retrieved_chunk_ids, retrieval_scores, model_name, response_text, citations, latency_ms, flags, confidence_level, created_at
FROM audit_records
WHERE conversation_id = $1
ORDER BY created_at DESC
LIMIT $2
`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var record domain.AuditRecord
		var workflow, confidence string
		var modelName sql.NullString
		var chunkIDs, scores, citations, flags []byte

		err := rows.Scan(
			&record.ID, &record.ConversationID, &record.Query, &workflow, &chunkIDs, &scores,
			&modelName, &record.ResponseText, &citations, &record.LatencyMS, &flags,
			&confidence, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		if err := json.Unmarshal(chunkIDs, &record.RetrievedChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
		}
		if err := json.Unmarshal(scores, &record.RetrievalScores); err != nil {
			return nil, fmt.Errorf("unmarshal retrieval scores: %w", err)
		}
		if err := json.Unmarshal(citations, &record.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		if err := json.Unmarshal(flags, &record.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
		record.Workflow = domain.Intent(workflow)
		record.ModelName = modelName.String
		record.ConfidenceLevel = domain.Confidence(confidence)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
