package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/semsearch/internal/logging"
)

// nativeDimensions lists models whose default output size is known before
// anything is embedded.
var nativeDimensions = map[string]int{
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// ExpectedDimension returns the dimension a model should produce: the
// configured output dimensionality when set, else the model's native size,
// else 0 when unknown.
func ExpectedDimension(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	name := strings.TrimPrefix(model, "models/")
	for known, dim := range nativeDimensions {
		if strings.Contains(name, known) {
			return dim
		}
	}
	return 0
}

// DimensionCheck compares a model's measured output size with the expected one.
type DimensionCheck struct {
	Expected int
	Actual   int
}

// Matches reports whether the model produced the expected dimension. An
// unknown expectation always matches.
func (c DimensionCheck) Matches() bool { return c.Expected == 0 || c.Expected == c.Actual }

// Dimension is the dimension the index must use: always the measured one.
func (c DimensionCheck) Dimension() int { return c.Actual }

// CheckDimension embeds a fixed string to measure the model's output size.
func CheckDimension(ctx context.Context, e Embedder, configured int) (DimensionCheck, error) {
	vec, err := e.EmbedQuery(ctx, "test")
	if err != nil {
		return DimensionCheck{}, fmt.Errorf("measure embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return DimensionCheck{}, fmt.Errorf("measure embedding dimension: provider returned an empty vector")
	}
	c := DimensionCheck{Expected: ExpectedDimension(e.Model(), configured), Actual: len(vec)}
	if !c.Matches() {
		logging.LogEvent("[EMBED] WARNING: expected %d dimensions from %s but got %d; using %d", c.Expected, e.Model(), c.Actual, c.Actual)
	}
	return c, nil
}
