package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/resilience"
)

// batchRequest is the wire body the SDK sends to batchEmbedContents.
type batchRequest struct {
	Requests []struct {
		Model   string `json:"model"`
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		TaskType             string `json:"taskType"`
		OutputDimensionality int    `json:"outputDimensionality"`
	} `json:"requests"`
}

type embeddingValues struct {
	Values []float32 `json:"values"`
}

type batchResponse struct {
	Embeddings []embeddingValues `json:"embeddings"`
}

func testConfig(baseURL string) appconfig.EmbeddingConfig {
	return appconfig.EmbeddingConfig{
		Provider:         appconfig.ProviderGemini,
		Model:            "gemini-embedding-001",
		APIKey:           "test-key",
		BaseURL:          baseURL,
		DocumentTaskType: "RETRIEVAL_DOCUMENT",
		QueryTaskType:    "RETRIEVAL_QUERY",
		BatchSize:        2,
	}
}

func TestEmbedDocumentsBatchesRequests(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/v1beta/models/gemini-embedding-001:batchEmbedContents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := batchResponse{}
		for i, item := range req.Requests {
			if item.TaskType != "RETRIEVAL_DOCUMENT" {
				t.Errorf("unexpected task type %q", item.TaskType)
			}
			if item.Model != "models/gemini-embedding-001" {
				t.Errorf("unexpected model %q", item.Model)
			}
			resp.Embeddings = append(resp.Embeddings, embeddingValues{Values: []float32{float32(len(item.Content.Parts[0].Text)), float32(i)}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), 0, server.Client())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	vectors, err := client.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedDocuments returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 batched calls, got %d", calls)
	}
	if len(vectors) != 3 || vectors[2][0] != 3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestEmbedQueryUsesQueryTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Requests[0].TaskType != "RETRIEVAL_QUERY" {
			t.Errorf("expected query task type, got %q", req.Requests[0].TaskType)
		}
		if req.Requests[0].OutputDimensionality != 3 {
			t.Errorf("expected outputDimensionality 3, got %d", req.Requests[0].OutputDimensionality)
		}
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Dimensions = 3
	client, err := New(cfg, 0, server.Client())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	vec, err := client.EmbedQuery(context.Background(), "what is go")
	if err != nil {
		t.Fatalf("EmbedQuery returned error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vec))
	}
}

func TestQuotaErrorsAreClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded for metric","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), 0, server.Client())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = client.EmbedQuery(context.Background(), "q")
	if !errors.Is(err, embedding.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	var quota *embedding.QuotaError
	if !errors.As(err, &quota) || !strings.Contains(quota.Help(), "rate-limits") {
		t.Fatalf("expected quota help text, got %v", err)
	}
}

func TestBadRequestIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client, _ := New(testConfig(server.URL), 0, server.Client())
	_, err := client.EmbedQuery(context.Background(), "q")
	var apiErr *embedding.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if embedding.Retryable(err) {
		t.Fatal("400 must not be retryable")
	}
}

func TestNewRequiresKey(t *testing.T) {
	cfg := testConfig("")
	cfg.APIKey = ""
	if _, err := New(cfg, 0, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestTimedOutAttemptIsRetried(t *testing.T) {
	resilience.ResetBreakers()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.5]}]}`))
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), 100*time.Millisecond, server.Client())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	wrapped, err := embedding.NewResilient(client, "gemini-timeout", 3, 0)
	if err != nil {
		t.Fatalf("NewResilient returned error: %v", err)
	}
	vec, err := wrapped.EmbedQuery(context.Background(), "slow first")
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
	if len(vec) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(vec))
	}
}
