// Package vectorstore defines the index-bound vector database interface
// shared by the Pinecone and SQLite backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mwiater/semsearch/internal/logging"
)

// MetaText is the metadata key holding a chunk's text.
const MetaText = "text"

var (
	// ErrIndexNotFound is returned when the configured index does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDimensionMismatch is returned when an existing index was built for a
	// different embedding dimension.
	ErrDimensionMismatch = errors.New("index dimension mismatch")
)

// Record is a vector to upsert.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is a query hit. Score is cosine similarity for cosine indexes.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Text returns the chunk text stored with the match.
func (m Match) Text() string {
	s, _ := m.Metadata[MetaText].(string)
	return s
}

// Stats summarizes index contents.
type Stats struct {
	Dimension        int
	TotalVectorCount int
	Namespaces       map[string]int
}

// IndexDescription describes an index as reported by the backend.
type IndexDescription struct {
	Name      string
	Dimension int
	Metric    string
	Host      string
	Cloud     string
	Region    string
	Ready     bool
}

// Store is a vector database bound to a single named index.
type Store interface {
	// Backend names the implementation, e.g. "pinecone".
	Backend() string
	// Name returns the index name.
	Name() string
	Exists(ctx context.Context) (bool, error)
	// Create creates the index and blocks until it is ready.
	Create(ctx context.Context, dimension int) error
	Describe(ctx context.Context) (IndexDescription, error)
	// Delete removes the index, reporting whether it existed.
	Delete(ctx context.Context) (bool, error)
	Upsert(ctx context.Context, records []Record) (int, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// DimensionMismatchError reports an existing index whose dimension differs
// from the embedding model's.
type DimensionMismatchError struct {
	Index    string
	Existing int
	Required int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("index %q has dimension %d but the embedding model produces %d.\n"+
		"Options:\n"+
		"  1. Delete the existing index in the vector database console\n"+
		"  2. Use a different index name (vectorStore.indexName)\n"+
		"  3. Run `semsearch index delete` to remove it programmatically",
		e.Index, e.Existing, e.Required)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match.
func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// EnsureIndex creates the store's index when missing, otherwise verifies that
// its dimension matches. It reports whether the index was created.
func EnsureIndex(ctx context.Context, s Store, dimension int) (bool, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check index %q: %w", s.Name(), err)
	}
	if !exists {
		logging.LogEvent("[INDEX] Creating %s index %q (dimension %d)", s.Backend(), s.Name(), dimension)
		if err := s.Create(ctx, dimension); err != nil {
			return false, fmt.Errorf("create index %q: %w", s.Name(), err)
		}
		logging.LogEvent("[INDEX] Index %q is ready", s.Name())
		return true, nil
	}

	desc, err := s.Describe(ctx)
	if err != nil {
		return false, fmt.Errorf("describe index %q: %w", s.Name(), err)
	}
	if desc.Dimension != dimension {
		return false, &DimensionMismatchError{Index: s.Name(), Existing: desc.Dimension, Required: dimension}
	}
	logging.LogEvent("[INDEX] Using existing index %q (dimension %d)", s.Name(), desc.Dimension)
	return false, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortMatches orders matches by descending score, breaking ties by ID, and
// truncates to topK.
func SortMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
