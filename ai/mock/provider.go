package mock

import "github.com/poiesic/ragchat/ai"

// MockProvider implements ai.AIProvider with mock services.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockGenerator
	closed    bool
}

func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		generator: NewMockGenerator("This ", "is ", "a ", "mock ", "answer."),
	}
}

func NewMockProviderWithServices(embedder *MockEmbedder, generator *MockGenerator) *MockProvider {
	return &MockProvider{
		embedder:  embedder,
		generator: generator,
	}
}

func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *MockProvider) Generator() ai.Generator {
	return p.generator
}

func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

func (p *MockProvider) GetMockGenerator() *MockGenerator {
	return p.generator
}
