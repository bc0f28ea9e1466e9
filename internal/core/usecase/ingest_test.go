package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

type fakeDocumentRepo struct {
	docs        map[string]*domain.Document
	bySHA       map[string]*domain.Document
	createErr   error
	statusByID  map[string]domain.DocumentStatus
	chunkCounts map[string]int
	errMessages map[string]string
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:        make(map[string]*domain.Document),
		bySHA:       make(map[string]*domain.Document),
		statusByID:  make(map[string]domain.DocumentStatus),
		chunkCounts: make(map[string]int),
		errMessages: make(map[string]string),
	}
}

func (f *fakeDocumentRepo) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *doc
	f.docs[doc.ID] = &copied
	f.bySHA[doc.TenantID+"/"+doc.SHA256] = &copied
	f.statusByID[doc.ID] = doc.Status
	return nil
}

func (f *fakeDocumentRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := *doc
	copied.Status = f.statusByID[id]
	return &copied, nil
}

func (f *fakeDocumentRepo) FindBySHA256(_ context.Context, tenantID, sha string) (*domain.Document, error) {
	return f.bySHA[tenantID+"/"+sha], nil
}

func (f *fakeDocumentRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, chunkCount int, errMessage string) error {
	f.statusByID[id] = status
	f.chunkCounts[id] = chunkCount
	f.errMessages[id] = errMessage
	return nil
}

type fakeObjectStorage struct {
	objects map[string][]byte
	saveErr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = content
	return nil
}

func (f *fakeObjectStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type fakeMessageQueue struct {
	published  []string
	publishErr error
}

func (f *fakeMessageQueue) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *fakeMessageQueue) SubscribeDocumentIngested(_ context.Context, _ func(context.Context, string) error) error {
	return nil
}

func parsedFixture() domain.ParsedDocument {
	return domain.ParsedDocument{
		Content:    "Item 7. Management's Discussion.\n\nRevenue grew 12%.",
		Title:      "Acme 10-K",
		SourceType: "10-K",
		Metadata:   map[string]string{"company_name": "Acme Corp", "filing_type": "10-K"},
		Sections: []domain.Section{
			{Heading: "Item 7", Level: 1, Content: "Revenue grew 12%.", Page: 42},
		},
	}
}

func TestIngestAcceptsDocument(t *testing.T) {
	repo := newFakeDocumentRepo()
	storage := newFakeObjectStorage()
	queue := &fakeMessageQueue{}
	ingestor := NewIngestor(repo, storage, queue, testLogger())

	doc, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-1", "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.ID == "" || doc.Status != domain.StatusUploaded {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.CompanyName != "Acme Corp" || doc.FilingType != "10-K" {
		t.Errorf("metadata not lifted: %+v", doc)
	}

	sum := sha256.Sum256([]byte(parsedFixture().Content))
	if doc.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 not computed: %s", doc.SHA256)
	}

	if _, ok := storage.objects["documents/"+doc.ID+".json"]; !ok {
		t.Error("parsed payload not stored")
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Errorf("ingest event not published: %v", queue.published)
	}
}

func TestIngestRejectsDuplicate(t *testing.T) {
	repo := newFakeDocumentRepo()
	ingestor := NewIngestor(repo, newFakeObjectStorage(), &fakeMessageQueue{}, testLogger())

	first, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-1", "")
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	second, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-1", "")
	if !errors.Is(err, domain.ErrDuplicateDocument) {
		t.Fatalf("expected ErrDuplicateDocument, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Error("duplicate should return the existing document")
	}
}

func TestIngestSameContentDifferentTenants(t *testing.T) {
	repo := newFakeDocumentRepo()
	ingestor := NewIngestor(repo, newFakeObjectStorage(), &fakeMessageQueue{}, testLogger())

	if _, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-1", ""); err != nil {
		t.Fatalf("tenant-1 ingest failed: %v", err)
	}
	if _, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-2", ""); err != nil {
		t.Fatalf("same content for another tenant must not be a duplicate: %v", err)
	}
}

func TestIngestRequiresTenant(t *testing.T) {
	ingestor := NewIngestor(newFakeDocumentRepo(), newFakeObjectStorage(), &fakeMessageQueue{}, testLogger())
	_, err := ingestor.Ingest(context.Background(), parsedFixture(), "", "")
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	ingestor := NewIngestor(newFakeDocumentRepo(), newFakeObjectStorage(), &fakeMessageQueue{}, testLogger())
	parsed := parsedFixture()
	parsed.Content = "  "
	_, err := ingestor.Ingest(context.Background(), parsed, "tenant-1", "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestMarksFailedOnPublishError(t *testing.T) {
	repo := newFakeDocumentRepo()
	queue := &fakeMessageQueue{publishErr: errors.New("nats down")}
	ingestor := NewIngestor(repo, newFakeObjectStorage(), queue, testLogger())

	_, err := ingestor.Ingest(context.Background(), parsedFixture(), "tenant-1", "")
	if err == nil {
		t.Fatal("expected publish error")
	}

	var failedID string
	for id, status := range repo.statusByID {
		if status == domain.StatusFailed {
			failedID = id
		}
	}
	if failedID == "" {
		t.Fatal("document not marked failed after publish error")
	}
	if repo.errMessages[failedID] == "" {
		t.Error("failure reason not recorded")
	}
}
