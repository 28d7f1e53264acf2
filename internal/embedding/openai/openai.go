// Package openai embeds text through any OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/logging"
)

// Client embeds text with an OpenAI embedding model.
type Client struct {
	client     sdk.Client
	model      string
	dimensions int
	batchSize  int
	timeout    time.Duration
}

// New builds a client from the embedding configuration. Retries are left to
// the embedding.Resilient wrapper.
func New(cfg appconfig.EmbeddingConfig, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is not set (OPENAI_API_KEY)")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai embedding model is empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Client{
		client:     sdk.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		timeout:    timeout,
	}, nil
}

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// EmbedDocuments embeds texts in batches.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, c.batchSize) {
		vectors, err := c.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query. OpenAI models have no task types.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: sdk.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		params.Dimensions = sdk.Int(int64(c.dimensions))
	}

	logging.LogRequest(logging.Send, "openai", c.model, "embeddings", fmt.Sprintf("%d texts", len(texts)))
	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, embedding.Classify("openai", apiErr.StatusCode, apiErr.Error())
		}
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", idx)
		}
		out[idx] = embedding.ToFloat32(item.Embedding)
	}
	logging.LogRequest(logging.Recv, "openai", c.model, "embeddings", fmt.Sprintf("%d vectors dim=%d", len(out), len(out[0])))
	return out, nil
}
