package semsearch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/providerfactory"
	"github.com/mwiater/semsearch/internal/search"
)

// newEngine builds the search engine from the loaded configuration. Tests
// replace it to avoid network providers.
var newEngine = func(ctx context.Context, cfg appconfig.Config) (*search.Engine, error) {
	embedder, err := providerfactory.NewEmbedder(&cfg)
	if err != nil {
		return nil, err
	}
	store, err := providerfactory.NewStore(&cfg)
	if err != nil {
		return nil, err
	}
	engine, err := search.New(ctx, cfg, embedder, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return engine, nil
}

func loadedConfig() appconfig.Config {
	if cfg := GetConfig(); cfg != nil {
		return *cfg
	}
	return appconfig.Default()
}

func openEngine(ctx context.Context, out io.Writer) (*search.Engine, error) {
	cfg := loadedConfig()
	engine, err := newEngine(ctx, cfg)
	if err != nil {
		failure(out, "Failed to initialize search engine: %v", err)
		return nil, err
	}
	success(out, "Search engine initialized (%s, dimension %d, %s index %q)",
		cfg.Embedding.Model, engine.Dimension(), cfg.VectorStore.Backend, cfg.VectorStore.IndexName)
	return engine, nil
}

// openLoadedEngine also connects to the existing index so searches work
// without rebuilding.
func openLoadedEngine(ctx context.Context, out io.Writer) (*search.Engine, error) {
	engine, err := openEngine(ctx, out)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadIndex(ctx); err != nil {
		failure(out, "Failed to load index: %v", err)
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// reportIndexError prints quota help when the provider ran out of quota.
func reportIndexError(out io.Writer, err error) {
	var quota *embedding.QuotaError
	if errors.As(err, &quota) {
		failure(out, "Embedding quota exceeded")
		fmt.Fprintln(out, quota.Help())
		return
	}
	failure(out, "Indexing failed: %v", err)
}
