package ports

import (
	"context"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

// DocumentIngestor is the inbound contract for accepting a parsed document.
// The caller is acknowledged once the document record exists; chunking and
// embedding happen asynchronously.
type DocumentIngestor interface {
	Ingest(ctx context.Context, parsed domain.ParsedDocument, tenantID, clientID string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous chunk+embed+index.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// QueryRequest carries the caller context for one workflow run.
type QueryRequest struct {
	TenantID       string
	ClientID       string
	UserID         string
	ConversationID string
	Query          string
	DocTypes       []string
	CompanyFilter  string
}

// QueryWorkflow runs the full evidence-gated answer pipeline for one query.
// The returned state is always terminal; the error is non-nil only for
// configuration faults detected before the pipeline starts.
type QueryWorkflow interface {
	Run(ctx context.Context, req QueryRequest) (domain.WorkflowState, error)
}

// AuditReader exposes the append-only audit trail for compliance review.
type AuditReader interface {
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.AuditRecord, error)
}
