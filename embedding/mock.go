package embedding

import (
	"context"
	"sync"
)

// MockEmbeddingModel is a test double. Fn takes precedence over Embedding.
type MockEmbeddingModel struct {
	Embedding []float64
	Err       error
	Fn        func(text string) ([]float64, error)

	mu    sync.Mutex
	texts []string
}

func (m *MockEmbeddingModel) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Fn != nil {
		return m.Fn(text)
	}
	return m.Embedding, nil
}

func (m *MockEmbeddingModel) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return m.GetTextEmbedding(ctx, query)
}

// Texts returns every text embedded so far.
func (m *MockEmbeddingModel) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
