package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
	"github.com/advisorworks/advisor-copilot/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor  ports.DocumentIngestor
	workflow  ports.QueryWorkflow
	documents ports.DocumentReader
	audit     ports.AuditReader
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	workflow ports.QueryWorkflow,
	documents ports.DocumentReader,
	audit ports.AuditReader,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		ingestor:  ingestor,
		workflow:  workflow,
		documents: documents,
		audit:     audit,
		metrics:   httpMetrics,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.ingestDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/chat/query", rt.chatQuery)
	mux.HandleFunc("/v1/audit/", rt.listAuditRecords)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	TenantID string                `json:"tenant_id"`
	ClientID string                `json:"client_id"`
	Document domain.ParsedDocument `json:"document"`
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.ingestor.Ingest(r.Context(), req.Document, req.TenantID, req.ClientID)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status == http.StatusConflict && doc != nil {
			// The existing document is part of the conflict answer.
			writeJSON(w, status, map[string]any{"error": err.Error(), "document": doc})
			return
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type chatQueryRequest struct {
	TenantID       string   `json:"tenant_id"`
	ClientID       string   `json:"client_id"`
	UserID         string   `json:"user_id"`
	ConversationID string   `json:"conversation_id"`
	Query          string   `json:"query"`
	DocTypes       []string `json:"doc_types"`
	CompanyFilter  string   `json:"company_filter"`
}

type chatQueryResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Intent         domain.Intent          `json:"intent"`
	Response       string                 `json:"response"`
	Citations      []domain.Citation      `json:"citations"`
	Evidence       domain.EvidenceQuality `json:"evidence_quality"`
	Flags          domain.Flags           `json:"flags"`
	ModelName      string                 `json:"model_name,omitempty"`
	LatencyMS      int64                  `json:"latency_ms"`
}

func (rt *Router) chatQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	state, err := rt.workflow.Run(r.Context(), ports.QueryRequest{
		TenantID:       req.TenantID,
		ClientID:       req.ClientID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		DocTypes:       req.DocTypes,
		CompanyFilter:  req.CompanyFilter,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.ObserveEvidenceChunks(serviceName, state.Evidence.EvidenceCount)
	}

	writeJSON(w, http.StatusOK, chatQueryResponse{
		ConversationID: state.ConversationID,
		Intent:         state.Intent,
		Response:       state.Response,
		Citations:      state.Citations,
		Evidence:       state.Evidence,
		Flags:          state.Flags,
		ModelName:      state.ModelName,
		LatencyMS:      state.LatencyMS,
	})
}

func (rt *Router) listAuditRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/v1/audit/")
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation id is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	records, err := rt.audit.ListByConversation(r.Context(), conversationID, limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
