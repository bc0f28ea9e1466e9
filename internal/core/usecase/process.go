package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
)

// ProcessorMetrics observes finished processing attempts.
type ProcessorMetrics interface {
	ObserveProcessing(status string, chunkCount int, seconds float64)
}

// Processor turns an uploaded document into indexed, searchable chunks. It is
// the consumer side of the ingest queue: chunk, embed, index, then flip the
// document status so readers can tell when retrieval will see it.
type Processor struct {
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	logger    *slog.Logger
	metrics   ProcessorMetrics
}

func NewProcessor(
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		documents: documents,
		storage:   storage,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		logger:    logger,
	}
}

func (p *Processor) WithMetrics(m ProcessorMetrics) *Processor {
	p.metrics = m
	return p
}

func (p *Processor) ProcessByID(ctx context.Context, documentID string) error {
	start := time.Now()

	doc, err := p.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.Status == domain.StatusReady {
		// Redelivered event for a document that already went through.
		p.logger.Info("document already processed", "document_id", documentID)
		return nil
	}

	if err := p.documents.UpdateStatus(ctx, documentID, domain.StatusProcessing, 0, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	chunkCount, err := p.process(ctx, doc)
	if err != nil {
		p.logger.Error("document processing failed", "document_id", documentID, "error", err)
		if updateErr := p.documents.UpdateStatus(ctx, documentID, domain.StatusFailed, 0, err.Error()); updateErr != nil {
			p.logger.Error("mark document failed", "document_id", documentID, "error", updateErr)
		}
		if p.metrics != nil {
			p.metrics.ObserveProcessing(string(domain.StatusFailed), 0, time.Since(start).Seconds())
		}
		return err
	}

	if err := p.documents.UpdateStatus(ctx, documentID, domain.StatusReady, chunkCount, ""); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ObserveProcessing(string(domain.StatusReady), chunkCount, time.Since(start).Seconds())
	}

	p.logger.Info("document processed", "document_id", documentID, "chunk_count", chunkCount)
	return nil
}

func (p *Processor) process(ctx context.Context, doc *domain.Document) (int, error) {
	reader, err := p.storage.Open(ctx, payloadKey(doc.ID))
	if err != nil {
		return 0, fmt.Errorf("open parsed payload: %w", err)
	}
	defer reader.Close()

	var parsed domain.ParsedDocument
	if err := json.NewDecoder(reader).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode parsed payload: %w", err)
	}

	docCtx := domain.ChunkContext{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		ClientID:   doc.ClientID,
		DocTitle:   doc.Title,
	}
	chunks := p.chunker.ChunkDocument(parsed.Content, parsed.Sections, docCtx, domain.StrategySectionBased)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	// Chunk identity is assigned here, at persistence time. The chunker stays
	// deterministic and replayable; ids exist only once chunks are real rows.
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		texts[i] = chunks[i].Content
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	if err := p.index.IndexChunks(ctx, doc, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	return len(chunks), nil
}
