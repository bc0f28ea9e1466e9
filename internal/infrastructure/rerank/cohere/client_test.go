package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRerankSendsQueryAndDocuments(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/rerank" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.92},{"index":0,"relevance_score":0.41}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "key-1", "rerank-english-v3.0", nil)
	out, err := client.Rerank(context.Background(), "market risk", []string{"doc a", "doc b"}, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Index != 1 || out[0].Score != 0.92 {
		t.Fatalf("unexpected first result: %+v", out[0])
	}
	if captured["query"] != "market risk" {
		t.Fatalf("query not forwarded: %v", captured["query"])
	}
}

func TestRerankEmptyDocumentsSkipsCall(t *testing.T) {
	client := New("http://unused", "key", "model", nil)
	out, err := client.Rerank(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil results, got %v", out)
	}
}

func TestRerankIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "key", "model", nil)
	_, err := client.Rerank(context.Background(), "q", []string{"doc"}, 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestRerankRejectsOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":9,"relevance_score":0.5}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "key", "model", nil)
	if _, err := client.Rerank(context.Background(), "q", []string{"doc"}, 1); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}
