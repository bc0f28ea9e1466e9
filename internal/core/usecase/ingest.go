package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

// Ingestor accepts parsed documents and hands them to the background
// pipeline. The caller is acknowledged as soon as the document row exists;
// chunking and embedding run in the worker.
type Ingestor struct {
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	logger    *slog.Logger
}

func NewIngestor(
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{documents: documents, storage: storage, queue: queue, logger: logger}
}

func (in *Ingestor) Ingest(ctx context.Context, parsed domain.ParsedDocument, tenantID, clientID string) (*domain.Document, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "ingest document", fmt.Errorf("empty tenant id"))
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest document", fmt.Errorf("empty document content"))
	}

	digest := parsed.SHA256
	if digest == "" {
		sum := sha256.Sum256([]byte(parsed.Content))
		digest = hex.EncodeToString(sum[:])
	}

	// Same content twice for one tenant is a no-op upload, not a new document.
	existing, err := in.documents.FindBySHA256(ctx, tenantID, digest)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		return existing, domain.WrapError(domain.ErrDuplicateDocument, "ingest document",
			fmt.Errorf("content already ingested as document %s", existing.ID))
	}

	doc := &domain.Document{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ClientID:    clientID,
		Title:       parsed.Title,
		SourceType:  parsed.SourceType,
		SourceURL:   parsed.SourceURL,
		SHA256:      digest,
		CompanyName: parsed.Metadata["company_name"],
		FilingType:  parsed.Metadata["filing_type"],
		Metadata:    parsed.Metadata,
		Status:      domain.StatusUploaded,
	}

	if err := in.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	payload, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("encode parsed payload: %w", err)
	}
	if err := in.storage.Save(ctx, payloadKey(doc.ID), bytes.NewReader(payload)); err != nil {
		in.failDocument(ctx, doc.ID, fmt.Errorf("store parsed payload: %w", err))
		return nil, fmt.Errorf("store parsed payload: %w", err)
	}

	if err := in.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		in.failDocument(ctx, doc.ID, fmt.Errorf("publish ingest event: %w", err))
		return nil, fmt.Errorf("publish ingest event: %w", err)
	}

	in.logger.Info("document accepted",
		"document_id", doc.ID,
		"tenant_id", tenantID,
		"source_type", doc.SourceType,
		"sha256", digest,
	)
	return doc, nil
}

func (in *Ingestor) failDocument(ctx context.Context, id string, cause error) {
	if err := in.documents.UpdateStatus(ctx, id, domain.StatusFailed, 0, cause.Error()); err != nil {
		in.logger.Error("mark document failed", "document_id", id, "error", err)
	}
}

func payloadKey(documentID string) string {
	return "documents/" + documentID + ".json"
}
