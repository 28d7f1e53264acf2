package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/search"
	"github.com/mwiater/semsearch/internal/vectorstore/sqlite"
)

// letterEmbedder counts letters, which is enough to rank exact matches first.
type letterEmbedder struct{}

func (letterEmbedder) Model() string { return "letters" }

func (letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (l letterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.vector(t)
	}
	return out, nil
}

func (l letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return l.vector(text), nil
}

func newTestServer(t *testing.T) (*Server, appconfig.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := appconfig.Default()
	cfg.VectorStore.Backend = appconfig.BackendSQLite
	cfg.VectorStore.SQLitePath = filepath.Join(dir, "web.db")
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")

	store, err := sqlite.Open(cfg.VectorStore)
	if err != nil {
		t.Fatalf("sqlite.Open returned error: %v", err)
	}
	engine, err := search.New(context.Background(), cfg, letterEmbedder{}, store)
	if err != nil {
		t.Fatalf("search.New returned error: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	srv, err := New(cfg, engine, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return srv, cfg
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(srv, req)
}

func flashOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	return loc.Query().Get("flash")
}

func TestDashboardWithoutDocuments(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "No documents indexed yet") {
		t.Fatalf("expected empty-index notice, got %s", body)
	}
}

func TestUploadTextThenSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postForm(srv, "/upload/text", url.Values{"title": {"Notes"}, "content": {"zebra zebra zebra"}})
	if got := flashOf(t, w); got != "Document uploaded! Created 1 chunks." {
		t.Fatalf("unexpected flash %q", got)
	}
	postForm(srv, "/upload/text", url.Values{"content": {"apple banana"}})

	w = postForm(srv, "/search", url.Values{"query": {"zebra"}, "top_k": {"1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Found 1 Results", "Score: 1.0000", "zebra zebra zebra", "Notes"} {
		if !strings.Contains(body, want) {
			t.Fatalf("search page missing %q", want)
		}
	}

	w = do(srv, httptest.NewRequest(http.MethodGet, "/?tab=info", nil))
	if !strings.Contains(w.Body.String(), "Active") || !strings.Contains(w.Body.String(), "semantic-search") {
		t.Fatalf("info tab missing status or index name")
	}
}

func multipartUpload(t *testing.T, name, content, title string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.WriteField("title", title)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadFileRemovesTempFile(t *testing.T) {
	srv, cfg := newTestServer(t)

	w := do(srv, multipartUpload(t, "guide.md", "# Guide\n\nSome markdown text.", "User Guide"))
	if got := flashOf(t, w); got != "File uploaded! Created 1 chunks from 1 pages." {
		t.Fatalf("unexpected flash %q", got)
	}
	entries, err := os.ReadDir(cfg.Server.UploadDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp upload to be removed, found %d files", len(entries))
	}

	w = postForm(srv, "/search", url.Values{"query": {"markdown"}})
	if !strings.Contains(w.Body.String(), "User Guide") {
		t.Fatal("expected title to replace the source")
	}
}

func TestUploadFileRejectsUnsupportedType(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(srv, multipartUpload(t, "report.docx", "binary", ""))
	if got := flashOf(t, w); !strings.Contains(got, "unsupported file type: .docx") {
		t.Fatalf("unexpected flash %q", got)
	}
}

func TestClearIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	postForm(srv, "/upload/text", url.Values{"content": {"something to index"}})

	w := postForm(srv, "/index/clear", url.Values{})
	if got := flashOf(t, w); got != "Index cleared!" {
		t.Fatalf("unexpected flash %q", got)
	}
	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 after clearing, got %d", w.Code)
	}
}

func TestJSONAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"title":"api","content":"quick brown fox"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", "application/json")
	w := do(srv, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"fox","top_k":3}`))
	req.Header.Set("Content-Type", "application/json")
	w = do(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count   int `json:"count"`
		Results []struct {
			Content  string         `json:"page_content"`
			Metadata map[string]any `json:"metadata"`
			Score    float64        `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Content != "quick brown fox" || resp.Results[0].Metadata["source"] != "api" {
		t.Fatalf("unexpected response %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if w := do(srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", w.Code)
	}

	w = do(srv, httptest.NewRequest(http.MethodDelete, "/api/index", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deleted":true`) {
		t.Fatalf("unexpected delete response %d %s", w.Code, w.Body.String())
	}
}

func TestServerWithoutEngine(t *testing.T) {
	srv, err := New(appconfig.Default(), nil, errors.New("GOOGLE_API_KEY is not set"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	w := do(srv, httptest.NewRequest(http.MethodGet, "/?tab=upload", nil))
	if !strings.Contains(w.Body.String(), "GOOGLE_API_KEY is not set") {
		t.Fatal("expected init error on the page")
	}
	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
