// Package testutil provides func-field mocks for the pipeline's injectable
// collaborators.
package testutil

import (
	"context"
	"sync"

	"github.com/dolr-ai/content-moderation-sub000/internal/gateway"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
)

// MockEmbedder is a mock implementation of classifier.Embedder.
type MockEmbedder struct {
	EmbedOneFunc func(ctx context.Context, text string) ([]float32, error)

	mu        sync.Mutex
	CallCount int
	LastText  string
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastText = text
	m.mu.Unlock()

	if m.EmbedOneFunc != nil {
		return m.EmbedOneFunc(ctx, text)
	}
	// Default: a fixed small vector.
	return []float32{0.1, 0.2, 0.3}, nil
}

// MockSearcher is a mock implementation of index.Searcher.
type MockSearcher struct {
	SearchFunc func(ctx context.Context, query []float32, k int) ([]index.RetrievedExample, error)

	mu        sync.Mutex
	CallCount int
	LastK     int
}

func (m *MockSearcher) Search(ctx context.Context, query []float32, k int) ([]index.RetrievedExample, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastK = k
	m.mu.Unlock()

	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, k)
	}
	return nil, nil
}

// MockGenerator is a mock implementation of classifier.Generator.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (*gateway.GenerationResult, error)

	mu             sync.Mutex
	CallCount      int
	LastUserPrompt string
	LastMaxTokens  int
}

func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (*gateway.GenerationResult, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastUserPrompt = userPrompt
	m.LastMaxTokens = maxTokens
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, userPrompt, maxTokens)
	}
	return &gateway.GenerationResult{Text: "Category: clean\nConfidence: HIGH", Attempts: 1}, nil
}

// Calls returns the generator call count under the lock.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
