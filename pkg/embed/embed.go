// Package embed defines the embedding provider boundary and an OpenAI-backed
// implementation. The engine consumes providers through the Provider
// interface only.
package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Provider turns text into dense vectors.
type Provider interface {
	// Embed returns one vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns vectors order-preserving and 1:1 with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the width of vectors this provider produces.
	Dimensions() int
}

// OpenAIClient implements Provider on the OpenAI embeddings API. Outbound
// calls are rate limited so bulk reindexing stays inside the API quota.
type OpenAIClient struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	dims    int
	limiter *rate.Limiter
}

// NewOpenAI creates an OpenAI embedding provider. An empty model defaults
// to text-embedding-3-small (1536 dimensions).
func NewOpenAI(apiKey, model string, dims int) *OpenAIClient {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.SmallEmbedding3
	}
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   m,
		dims:    dims,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Dimensions implements Provider.
func (c *OpenAIClient) Dimensions() int { return c.dims }

// Embed implements Provider.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Provider. All texts go out in a single API call;
// batching here is the cost and latency optimisation the ingestion path
// depends on.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: openai returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embed: openai returned out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
