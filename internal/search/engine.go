// Package search ties document loading, chunking, embedding and the vector
// store together into the semantic search engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/document"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/textsplit"
	"github.com/mwiater/semsearch/internal/vectorstore"
)

// ErrNotInitialized is returned by queries before an index is built or loaded.
var ErrNotInitialized = errors.New("vector store not initialized. Build or load an index first")

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// ScoredDocument is a search hit with its similarity score.
type ScoredDocument struct {
	document.Document
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Info describes the active index.
type Info struct {
	IndexName        string `json:"index_name"`
	TotalVectorCount int    `json:"total_vector_count"`
	Dimension        int    `json:"dimension"`
	Metric           string `json:"metric"`
	Cloud            string `json:"cloud"`
	Region           string `json:"region"`
	Backend          string `json:"backend"`
	Model            string `json:"model"`
}

// BuildResult summarizes an indexing run.
type BuildResult struct {
	Documents int
	Chunks    int
	Upserted  int
}

// Engine is the semantic search engine. It is safe for concurrent use.
type Engine struct {
	cfg       appconfig.Config
	embedder  embedding.Embedder
	store     vectorstore.Store
	splitter  textsplit.Splitter
	dimension int
	newID     func() string

	mu          sync.RWMutex
	initialized bool
}

// New measures the embedding dimension and makes sure the configured index
// exists with that dimension. The engine starts uninitialized; call
// BuildIndex, AddDocuments or LoadIndex before searching.
func New(ctx context.Context, cfg appconfig.Config, embedder embedding.Embedder, store vectorstore.Store) (*Engine, error) {
	splitter, err := textsplit.New(cfg.Chunking)
	if err != nil {
		return nil, err
	}

	logging.LogEvent("[ENGINE] Measuring embedding dimension for %s", embedder.Model())
	dim, err := embedding.CheckDimension(ctx, embedder, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, err
	}
	logging.LogEvent("[ENGINE] Embedding dimension: %d", dim.Dimension())

	if _, err := vectorstore.EnsureIndex(ctx, store, dim.Dimension()); err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		splitter:  splitter,
		dimension: dim.Dimension(),
		newID:     uuid.NewString,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() appconfig.Config { return e.cfg }

// Dimension returns the embedding dimension the index uses.
func (e *Engine) Dimension() int { return e.dimension }

// Initialized reports whether an index has been built or loaded.
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

func (e *Engine) setInitialized(v bool) {
	e.mu.Lock()
	e.initialized = v
	e.mu.Unlock()
}

// LoadDocuments loads a file or every matching file under a directory.
func (e *Engine) LoadDocuments(filePath, dirPath string) ([]document.Document, error) {
	return e.LoadDocumentsWithProgress(filePath, dirPath, nil)
}

// LoadDocumentsWithProgress is LoadDocuments with a callback invoked after
// each file of a directory load.
func (e *Engine) LoadDocumentsWithProgress(filePath, dirPath string, progress func(done, total int, path string)) ([]document.Document, error) {
	opts := document.Options{
		Glob:     e.cfg.Documents.DirectoryGlob,
		Exclude:  e.cfg.Documents.ExcludeGlobs,
		Progress: progress,
	}
	docs, err := document.Load(filePath, dirPath, opts)
	if err != nil {
		return nil, err
	}
	logging.LogEvent("[ENGINE] Loaded %d documents", len(docs))
	return docs, nil
}

// BuildIndex chunks, embeds and upserts docs, recreating the index first if
// it was deleted, and marks the engine initialized.
func (e *Engine) BuildIndex(ctx context.Context, docs []document.Document) (BuildResult, error) {
	if _, err := vectorstore.EnsureIndex(ctx, e.store, e.dimension); err != nil {
		return BuildResult{}, err
	}
	res, err := e.index(ctx, docs)
	if err != nil {
		return res, err
	}
	e.setInitialized(true)
	logging.LogEvent("[ENGINE] Index %q populated with %d vectors", e.store.Name(), res.Upserted)
	return res, nil
}

// AddDocuments indexes docs incrementally, building the index when none is
// loaded yet.
func (e *Engine) AddDocuments(ctx context.Context, docs []document.Document) (BuildResult, error) {
	if !e.Initialized() {
		return e.BuildIndex(ctx, docs)
	}
	return e.index(ctx, docs)
}

func (e *Engine) index(ctx context.Context, docs []document.Document) (BuildResult, error) {
	res := BuildResult{Documents: len(docs)}
	chunks := textsplit.SplitDocuments(e.splitter, docs)
	res.Chunks = len(chunks)
	logging.LogEvent("[ENGINE] Split %d documents into %d chunks", len(docs), len(chunks))
	if len(chunks) == 0 {
		return res, nil
	}

	batch := e.cfg.Embedding.BatchSize
	if batch <= 0 {
		batch = 100
	}
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		part := chunks[start:end]
		texts := make([]string, len(part))
		for i, c := range part {
			texts[i] = c.Content
		}

		vectors, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return res, e.embeddingFailure(err)
		}

		records := make([]vectorstore.Record, len(part))
		for i, c := range part {
			meta := make(map[string]any, len(c.Metadata)+1)
			for k, v := range c.Metadata {
				meta[k] = v
			}
			meta[vectorstore.MetaText] = c.Content
			records[i] = vectorstore.Record{ID: e.newID(), Values: vectors[i], Metadata: meta}
		}
		n, err := e.store.Upsert(ctx, records)
		res.Upserted += n
		if err != nil {
			return res, fmt.Errorf("upsert chunks: %w", err)
		}
		logging.LogEvent("[ENGINE] Indexed %d/%d chunks", end, len(chunks))
	}
	return res, nil
}

func (e *Engine) embeddingFailure(err error) error {
	var quota *embedding.QuotaError
	if errors.As(err, &quota) {
		logging.LogEvent("[ENGINE] Embedding quota exceeded: %s\n%s", quota.Message, quota.Help())
		return err
	}
	logging.LogEvent("[ENGINE] Embedding failed: %v", err)
	return fmt.Errorf("embed chunks: %w", err)
}

// LoadIndex connects to the existing index.
func (e *Engine) LoadIndex(ctx context.Context) error {
	exists, err := e.store.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, e.store.Name())
	}
	e.setInitialized(true)
	logging.LogEvent("[ENGINE] Connected to %s index %q", e.store.Backend(), e.store.Name())
	return nil
}

// DeleteIndex removes the index and resets the engine. It reports whether
// the index existed.
func (e *Engine) DeleteIndex(ctx context.Context) (bool, error) {
	deleted, err := e.store.Delete(ctx)
	if err != nil {
		return false, fmt.Errorf("delete index %q: %w", e.store.Name(), err)
	}
	e.setInitialized(false)
	if deleted {
		logging.LogEvent("[ENGINE] Deleted index %q", e.store.Name())
	} else {
		logging.LogEvent("[ENGINE] Index %q does not exist", e.store.Name())
	}
	return deleted, nil
}

// Search returns the k most similar chunks.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]document.Document, error) {
	scored, err := e.SearchWithScores(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document
	}
	return docs, nil
}

// SearchWithScores returns the k most similar chunks with their scores,
// best first.
func (e *Engine) SearchWithScores(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if !e.Initialized() {
		return nil, ErrNotInitialized
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	k = e.cfg.ClampTopK(k)

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := e.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	out := make([]ScoredDocument, 0, len(matches))
	for _, m := range matches {
		meta := make(map[string]any, len(m.Metadata))
		for key, v := range m.Metadata {
			if key != vectorstore.MetaText {
				meta[key] = v
			}
		}
		out = append(out, ScoredDocument{
			Document: document.Document{Content: m.Text(), Metadata: meta},
			ID:       m.ID,
			Score:    m.Score,
		})
	}
	logging.LogEvent("[SEARCH] %q returned %d results", query, len(out))
	return out, nil
}

// CollectionInfo reports the index name, vector count and configuration.
func (e *Engine) CollectionInfo(ctx context.Context) (Info, error) {
	if !e.Initialized() {
		return Info{}, ErrNotInitialized
	}
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("index stats: %w", err)
	}
	info := Info{
		IndexName:        e.store.Name(),
		TotalVectorCount: stats.TotalVectorCount,
		Dimension:        stats.Dimension,
		Metric:           e.cfg.VectorStore.Metric,
		Cloud:            e.cfg.VectorStore.Cloud,
		Region:           e.cfg.VectorStore.Region,
		Backend:          e.store.Backend(),
		Model:            e.embedder.Model(),
	}
	if info.Dimension == 0 {
		info.Dimension = e.dimension
	}
	return info, nil
}

// Close releases the vector store.
func (e *Engine) Close() error { return e.store.Close() }
