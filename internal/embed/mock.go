package embed

import (
	"context"
	"sync"
)

// MockEmbedder is a test embedder with scriptable vectors. If a text has no
// scripted vector it falls back to deterministic hashing, so tests only pin
// the vectors they care about.
type MockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float64
	fallback *HashEmbedder

	Err   error // returned by every Embed call when set
	Calls int
}

// NewMockEmbedder creates a mock with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{
		vectors:  make(map[string][]float64),
		fallback: NewHashEmbedder(dims),
	}
}

func (m *MockEmbedder) Model() string   { return "mock" }
func (m *MockEmbedder) Dimensions() int { return m.fallback.Dimensions() }

// Script pins the vector returned for an exact text.
func (m *MockEmbedder) Script(text string, vec []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.Calls++
	vec, ok := m.vectors[text]
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return vec, nil
	}
	return m.fallback.Embed(ctx, text)
}
