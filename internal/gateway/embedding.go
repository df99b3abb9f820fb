package gateway

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
)

// EmbeddingClient turns text into dense vectors by calling an external
// embedding-inference endpoint speaking the {model, input} wire format.
type EmbeddingClient struct {
	url        string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingClient creates an embedding gateway. The httpClient should come
// from NewPooledClient and may be shared with the generation gateway. A
// dimensions of 0 skips the per-vector dimension check.
func NewEmbeddingClient(url, model, apiKey string, dimensions int, httpClient *http.Client, policy retry.Policy, logger *zap.Logger) *EmbeddingClient {
	if httpClient == nil {
		httpClient = NewPooledClient(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingClient{
		url:        url,
		model:      model,
		apiKey:     apiKey,
		dimensions: dimensions,
		httpClient: httpClient,
		policy:     policy,
		logger:     logger,
	}
}

// Dimensions returns the configured embedding width, 0 if unchecked.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed returns one vector per input text, order-preserving. A response whose
// data count differs from the input count, or whose vectors have the wrong
// width, is a malformed-upstream error.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &Error{API: "embedding", Kind: KindRejected, Err: fmt.Errorf("no input texts")}
	}

	var resp embeddingResponse
	attempts, err := callWithRetry(ctx, c.httpClient, c.logger, c.policy, "embedding", c.url, c.apiKey,
		embeddingRequest{Model: c.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, &Error{
			API:      "embedding",
			Kind:     KindMalformed,
			Attempts: attempts,
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, &Error{
				API:      "embedding",
				Kind:     KindMalformed,
				Attempts: attempts,
				Err:      fmt.Errorf("embedding %d is missing", i),
			}
		}
		if c.dimensions > 0 && len(d.Embedding) != c.dimensions {
			return nil, &Error{
				API:      "embedding",
				Kind:     KindMalformed,
				Attempts: attempts,
				Err:      fmt.Errorf("embedding %d has dimension %d, want %d", i, len(d.Embedding), c.dimensions),
			}
		}
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// EmbedOne embeds a single text.
func (c *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
