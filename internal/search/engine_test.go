package search

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/document"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/vectorstore"
	"github.com/mwiater/semsearch/internal/vectorstore/sqlite"
)

const testDim = 64

// hashEmbedder maps each word to a bucket so texts sharing words score high.
type hashEmbedder struct {
	fail  error
	calls int
}

func (h *hashEmbedder) Model() string { return "hash-embedding" }

func (h *hashEmbedder) embed(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(strings.Trim(w, ".,?!")))
		v[f.Sum32()%testDim]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func testConfig(t *testing.T) appconfig.Config {
	t.Helper()
	cfg := appconfig.Default()
	cfg.VectorStore.Backend = appconfig.BackendSQLite
	cfg.VectorStore.SQLitePath = filepath.Join(t.TempDir(), "engine.db")
	cfg.Chunking.Size = 60
	cfg.Chunking.Overlap = 10
	cfg.Embedding.BatchSize = 2
	return cfg
}

func newEngine(t *testing.T, cfg appconfig.Config, e embedding.Embedder) *Engine {
	t.Helper()
	store, err := sqlite.Open(cfg.VectorStore)
	if err != nil {
		t.Fatalf("sqlite.Open returned error: %v", err)
	}
	engine, err := New(context.Background(), cfg, e, store)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func corpus() []document.Document {
	return []document.Document{
		document.FromText("Go is a statically typed compiled language designed at Google. Goroutines make concurrency cheap.", "go.md"),
		document.FromText("Pinecone is a managed vector database. It answers nearest neighbor queries over embeddings.", "pinecone.md"),
		document.FromText("Bread needs flour, water, salt and yeast. Knead the dough and let it rise.", "bread.md"),
	}
}

func TestSearchBeforeBuildFails(t *testing.T) {
	engine := newEngine(t, testConfig(t), &hashEmbedder{})
	ctx := context.Background()

	if _, err := engine.Search(ctx, "go", 3); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := engine.CollectionInfo(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if engine.Dimension() != testDim {
		t.Fatalf("expected measured dimension %d, got %d", testDim, engine.Dimension())
	}
}

func TestBuildIndexAndSearch(t *testing.T) {
	engine := newEngine(t, testConfig(t), &hashEmbedder{})
	ctx := context.Background()

	res, err := engine.BuildIndex(ctx, corpus())
	if err != nil {
		t.Fatalf("BuildIndex returned error: %v", err)
	}
	if res.Documents != 3 || res.Chunks < 3 || res.Upserted != res.Chunks {
		t.Fatalf("unexpected build result %+v", res)
	}

	results, err := engine.SearchWithScores(ctx, "dough flour yeast", 2)
	if err != nil {
		t.Fatalf("SearchWithScores returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Source() != "bread.md" {
		t.Fatalf("expected bread.md first, got %+v", results[0])
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not sorted by score: %+v", results)
	}
	if _, ok := results[0].Metadata[vectorstore.MetaText]; ok {
		t.Fatal("chunk text should not be repeated in metadata")
	}
	if _, ok := results[0].Metadata[document.MetaChunkIndex]; !ok {
		t.Fatal("expected chunk_index metadata")
	}

	docs, err := engine.Search(ctx, "vector database embeddings", 1)
	if err != nil || len(docs) != 1 || docs[0].Source() != "pinecone.md" {
		t.Fatalf("unexpected search result %+v %v", docs, err)
	}

	info, err := engine.CollectionInfo(ctx)
	if err != nil {
		t.Fatalf("CollectionInfo returned error: %v", err)
	}
	if info.IndexName != "semantic-search" || info.TotalVectorCount != res.Chunks || info.Dimension != testDim {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestLoadDocumentsReportsProgress(t *testing.T) {
	cfg := testConfig(t)
	cfg.Documents.DirectoryGlob = "**/*.txt"
	engine := newEngine(t, cfg, &hashEmbedder{})

	dir := t.TempDir()
	for _, name := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("some text about "+name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var seen []int
	docs, err := engine.LoadDocumentsWithProgress("", dir, func(done, total int, path string) {
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}
		seen = append(seen, done)
	})
	if err != nil {
		t.Fatalf("LoadDocumentsWithProgress returned error: %v", err)
	}
	if len(docs) != 2 || len(seen) != 2 || seen[1] != 2 {
		t.Fatalf("expected 2 docs with progress 1..2, got %d docs and %v", len(docs), seen)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	engine := newEngine(t, testConfig(t), &hashEmbedder{})
	if _, err := engine.BuildIndex(context.Background(), corpus()); err != nil {
		t.Fatalf("BuildIndex returned error: %v", err)
	}
	if _, err := engine.Search(context.Background(), "   ", 3); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAddDocumentsBuildsWhenUninitialized(t *testing.T) {
	engine := newEngine(t, testConfig(t), &hashEmbedder{})
	ctx := context.Background()

	if _, err := engine.AddDocuments(ctx, corpus()[:1]); err != nil {
		t.Fatalf("AddDocuments returned error: %v", err)
	}
	if !engine.Initialized() {
		t.Fatal("expected engine to be initialized")
	}
	first, _ := engine.CollectionInfo(ctx)

	if _, err := engine.AddDocuments(ctx, corpus()[1:]); err != nil {
		t.Fatalf("AddDocuments returned error: %v", err)
	}
	second, _ := engine.CollectionInfo(ctx)
	if second.TotalVectorCount <= first.TotalVectorCount {
		t.Fatalf("expected vector count to grow, got %d then %d", first.TotalVectorCount, second.TotalVectorCount)
	}
}

func TestDeleteAndLoadIndex(t *testing.T) {
	cfg := testConfig(t)
	engine := newEngine(t, cfg, &hashEmbedder{})
	ctx := context.Background()

	if _, err := engine.BuildIndex(ctx, corpus()); err != nil {
		t.Fatalf("BuildIndex returned error: %v", err)
	}
	deleted, err := engine.DeleteIndex(ctx)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got %v %v", deleted, err)
	}
	if engine.Initialized() {
		t.Fatal("engine should be uninitialized after delete")
	}
	if err := engine.LoadIndex(ctx); !errors.Is(err, vectorstore.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	deleted, err = engine.DeleteIndex(ctx)
	if err != nil || deleted {
		t.Fatalf("expected missing index to be reported, got %v %v", deleted, err)
	}

	// Rebuilding recreates the deleted index.
	if _, err := engine.BuildIndex(ctx, corpus()); err != nil {
		t.Fatalf("rebuild returned error: %v", err)
	}
	if err := engine.LoadIndex(ctx); err != nil {
		t.Fatalf("LoadIndex returned error: %v", err)
	}
}

func TestBuildIndexReturnsQuotaError(t *testing.T) {
	quota := embedding.Classify("gemini", 429, "Quota exceeded")
	engine := newEngine(t, testConfig(t), &hashEmbedder{fail: quota})

	_, err := engine.BuildIndex(context.Background(), corpus())
	if !errors.Is(err, embedding.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if engine.Initialized() {
		t.Fatal("failed build must not initialize the engine")
	}
}

func TestNewRejectsDimensionMismatch(t *testing.T) {
	cfg := testConfig(t)
	store, err := sqlite.Open(cfg.VectorStore)
	if err != nil {
		t.Fatalf("sqlite.Open returned error: %v", err)
	}
	defer store.Close()
	if err := store.Create(context.Background(), testDim*2); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := New(context.Background(), cfg, &hashEmbedder{}, store); !errors.Is(err, vectorstore.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestFormatContextRespectsTokenLimit(t *testing.T) {
	results := []ScoredDocument{
		{Document: document.FromText("one two three four", "a.md")},
		{Document: document.FromText("five six seven", "b.md")},
	}
	text, tokens, sources := FormatContext(results, 5)
	if tokens != 5 || sources != 2 {
		t.Fatalf("expected 5 tokens from 2 sources, got %d from %d", tokens, sources)
	}
	if !strings.Contains(text, "[doc:a.md] one two three four") || !strings.Contains(text, "[doc:b.md] five") {
		t.Fatalf("unexpected context %q", text)
	}
	if text, tokens, sources := FormatContext(nil, 10); text != "" || tokens != 0 || sources != 0 {
		t.Fatal("expected empty result when no results")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("héllo world", 5); got != "héllo..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("short", 10); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
