// Package embedding defines the interface to the hosted embedding models and
// the behavior shared by every provider: error classification, retries,
// circuit breaking, query caching, and dimension checks.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Embedder converts text into embedding vectors.
type Embedder interface {
	// EmbedDocuments embeds texts that will be stored in the index.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model returns the provider's model identifier.
	Model() string
}

// ErrQuotaExceeded matches every *QuotaError.
var ErrQuotaExceeded = errors.New("embedding quota exceeded")

// APIError is a non-2xx response from an embedding provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s embedding request failed: %d %s: %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// QuotaError reports an exhausted rate limit or quota.
type QuotaError struct {
	APIError
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s embedding quota exceeded (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// Help returns the steps a user can take to get past the quota.
func (e *QuotaError) Help() string {
	var b strings.Builder
	b.WriteString("How to resolve:\n")
	if e.Provider == "gemini" {
		b.WriteString("  - Check your Gemini API usage and free-tier quotas:\n")
		b.WriteString("    https://ai.google.dev/gemini-api/docs/rate-limits\n")
	} else {
		b.WriteString("  - Check the provider's usage dashboard and rate limits.\n")
	}
	b.WriteString("  - Consider indexing fewer pages/chunks per run.\n")
	b.WriteString("  - Wait for the daily quota reset or enable billing / higher limits.\n")
	return b.String()
}

// Classify converts a failed provider response into *QuotaError (HTTP 429
// or a message mentioning quota) or *APIError.
func Classify(provider string, status int, message string) error {
	message = strings.TrimSpace(message)
	base := APIError{Provider: provider, StatusCode: status, Message: message}
	if status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(message), "quota") {
		return &QuotaError{APIError: base}
	}
	return &base
}

// Retryable reports whether a failed call may succeed if repeated: rate
// limits, server errors, and network failures including a timed-out attempt.
// A caller whose own context has ended is stopped by resilience.Retry.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return quota.StatusCode == http.StatusTooManyRequests
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// countsAsFailure reports whether err says something about the provider's
// health rather than about the request.
func countsAsFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Batches splits texts into consecutive slices of at most size elements.
func Batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}

// ToFloat32 narrows a provider's float64 vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
