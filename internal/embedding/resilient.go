package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/resilience"
)

// Resilient decorates an Embedder with retries, a circuit breaker, and a
// query embedding cache.
type Resilient struct {
	inner   Embedder
	name    string
	retry   resilience.RetryConfig
	breaker resilience.BreakerConfig
	cache   *lru.Cache[string, []float32]
}

// NewResilient wraps inner. A cacheSize of zero disables query caching.
func NewResilient(inner Embedder, provider string, maxRetries, cacheSize int) (*Resilient, error) {
	r := &Resilient{
		inner: inner,
		name:  "embedding:" + provider,
		retry: resilience.DefaultRetryConfig(maxRetries),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Model returns the wrapped model identifier.
func (r *Resilient) Model() string { return r.inner.Model() }

// Unwrap returns the decorated Embedder.
func (r *Resilient) Unwrap() Embedder { return r.inner }

// EmbedDocuments embeds texts, retrying transient provider failures.
func (r *Resilient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := resilience.Retry(ctx, r.retry, Retryable, func() error {
		out, err := resilience.Execute(r.name, r.breaker, countsAsFailure, func() ([][]float32, error) {
			return r.inner.EmbedDocuments(ctx, texts)
		})
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a query, serving repeats from the cache.
func (r *Resilient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := r.inner.Model() + "\x00" + text
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			logging.LogEvent("[EMBED] query cache hit (%d chars)", len(text))
			return v, nil
		}
	}

	var vector []float32
	err := resilience.Retry(ctx, r.retry, Retryable, func() error {
		out, err := resilience.Execute(r.name, r.breaker, countsAsFailure, func() ([]float32, error) {
			return r.inner.EmbedQuery(ctx, text)
		})
		if err != nil {
			return err
		}
		vector = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(key, vector)
	}
	return vector, nil
}
