package gateway

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
)

// GenerationClient sends an assembled prompt to an external chat-completion
// endpoint and returns the raw generated text.
type GenerationClient struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerationResult carries the raw text plus the attempt telemetry for the
// call that produced it.
type GenerationResult struct {
	Text     string
	Attempts int
}

// NewGenerationClient creates a generation gateway sharing the pooled
// httpClient with the embedding gateway.
func NewGenerationClient(url, model, apiKey string, httpClient *http.Client, policy retry.Policy, logger *zap.Logger) *GenerationClient {
	if httpClient == nil {
		httpClient = NewPooledClient(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationClient{
		url:        url,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
		policy:     policy,
		logger:     logger,
	}
}

// Generate runs one chat completion at temperature 0 and returns the first
// choice's content. An empty choices list or empty content is a
// malformed-upstream error: a silent empty answer would otherwise parse as a
// clean classification.
func (c *GenerationClient) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (*GenerationResult, error) {
	req := chatRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	var resp chatResponse
	attempts, err := callWithRetry(ctx, c.httpClient, c.logger, c.policy, "generation", c.url, c.apiKey, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{
			API:      "generation",
			Kind:     KindMalformed,
			Attempts: attempts,
			Err:      fmt.Errorf("response has no choices"),
		}
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, &Error{
			API:      "generation",
			Kind:     KindMalformed,
			Attempts: attempts,
			Err:      fmt.Errorf("response choice has empty content"),
		}
	}

	return &GenerationResult{Text: content, Attempts: attempts}, nil
}
