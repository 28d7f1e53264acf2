// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"net/http"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/embedding/gemini"
	"github.com/mwiater/semsearch/internal/embedding/openai"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/vectorstore"
	"github.com/mwiater/semsearch/internal/vectorstore/pinecone"
	"github.com/mwiater/semsearch/internal/vectorstore/sqlite"
)

// NewEmbedder selects the embedding provider named by the configuration and
// wraps it with retries, a circuit breaker, and the query cache.
func NewEmbedder(cfg *appconfig.Config) (embedding.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	var inner embedding.Embedder
	var err error
	switch cfg.Embedding.Provider {
	case appconfig.ProviderGemini, "":
		inner, err = gemini.New(cfg.Embedding, cfg.RequestTimeout(), &http.Client{})
	case appconfig.ProviderOpenAI:
		inner, err = openai.New(cfg.Embedding, cfg.RequestTimeout())
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
	if err != nil {
		logging.LogEvent("Embedding provider unavailable: %v", err)
		return nil, err
	}
	logging.LogEvent("Embedding provider ready: %s (%s)", providerName(cfg), inner.Model())

	return embedding.NewResilient(inner, providerName(cfg), cfg.Embedding.MaxRetries, cfg.Embedding.CacheSize)
}

// NewStore opens the vector store backend named by the configuration.
func NewStore(cfg *appconfig.Config) (vectorstore.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	var store vectorstore.Store
	var err error
	switch cfg.VectorStore.Backend {
	case appconfig.BackendPinecone, "":
		store, err = pinecone.New(cfg.VectorStore, cfg.RequestTimeout(), cfg.ReadyTimeout(), &http.Client{})
	case appconfig.BackendSQLite:
		store, err = sqlite.Open(cfg.VectorStore)
	default:
		return nil, fmt.Errorf("unsupported vector store backend %q", cfg.VectorStore.Backend)
	}
	if err != nil {
		logging.LogEvent("Vector store unavailable: %v", err)
		return nil, err
	}
	logging.LogEvent("Vector store ready: %s index %q", store.Backend(), store.Name())
	return store, nil
}

func providerName(cfg *appconfig.Config) string {
	if cfg.Embedding.Provider == "" {
		return appconfig.ProviderGemini
	}
	return cfg.Embedding.Provider
}
