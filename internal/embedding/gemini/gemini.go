// Package gemini embeds text with Gemini models through the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/logging"
)

// maxBatch is the per-request limit of batchEmbedContents.
const maxBatch = 100

// Client embeds text with a Gemini embedding model.
type Client struct {
	client       *genai.Client
	model        string
	dimensions   int
	documentTask string
	queryTask    string
	batchSize    int
	timeout      time.Duration
}

// New builds a client from the embedding configuration. Retries are left to
// the embedding.Resilient wrapper.
func New(cfg appconfig.EmbeddingConfig, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is not set (GOOGLE_API_KEY)")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini embedding model is empty")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		cc.HTTPOptions.BaseURL = base + "/"
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > maxBatch {
		batch = maxBatch
	}
	return &Client{
		client:       client,
		model:        strings.TrimPrefix(cfg.Model, "models/"),
		dimensions:   cfg.Dimensions,
		documentTask: cfg.DocumentTaskType,
		queryTask:    cfg.QueryTaskType,
		batchSize:    batch,
		timeout:      timeout,
	}, nil
}

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// EmbedDocuments embeds texts as retrieval documents.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, c.batchSize) {
		vectors, err := c.embed(ctx, batch, c.documentTask)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, c.queryTask)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	config := &genai.EmbedContentConfig{TaskType: task}
	if c.dimensions > 0 {
		dims := int32(c.dimensions)
		config.OutputDimensionality = &dims
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logging.LogRequest(logging.Send, "gemini", c.model, "batchEmbedContents", fmt.Sprintf("%d texts task=%s", len(texts), task))
	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			logging.LogRequest(logging.Recv, "gemini", c.model, "batchEmbedContents", apiErr.Message)
			return nil, embedding.Classify("gemini", apiErr.Code, errorMessage(apiErr))
		}
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding response returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("embedding response returned empty vector at %d", i)
		}
		out[i] = e.Values
	}
	logging.LogRequest(logging.Recv, "gemini", c.model, "batchEmbedContents", fmt.Sprintf("%d vectors dim=%d", len(out), len(out[0])))
	return out, nil
}

func errorMessage(e genai.APIError) string {
	msg := strings.TrimSpace(e.Message)
	if e.Status != "" && msg != "" && !strings.Contains(e.Status, " ") {
		return e.Status + ": " + msg
	}
	return msg
}
