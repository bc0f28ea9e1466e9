package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Section is one structural unit of an externally parsed document.
// Page is zero when the source has no pagination.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Content string `json:"content"`
	Page    int    `json:"page,omitempty"`
}

// ParsedDocument is the normalized output of an external parser. The core
// never sees raw PDF/HTML/EDGAR formats; it consumes this structure as-is.
type ParsedDocument struct {
	Content    string            `json:"content"`
	Title      string            `json:"title"`
	SourceType string            `json:"source_type"`
	SourceURL  string            `json:"source_url,omitempty"`
	SHA256     string            `json:"sha256"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Sections   []Section         `json:"sections"`
}

type Document struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	ClientID    string            `json:"client_id,omitempty"`
	Title       string            `json:"title"`
	SourceType  string            `json:"source_type"`
	SourceURL   string            `json:"source_url,omitempty"`
	SHA256      string            `json:"sha256"`
	CompanyName string            `json:"company_name,omitempty"`
	FilingType  string            `json:"filing_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      DocumentStatus    `json:"status"`
	ChunkCount  int               `json:"chunk_count"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ClientID  string    `json:"client_id,omitempty"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
