package llm

import "context"

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response   string
	Err        error
	LastPrompt string
	LastImage  string
}

func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.LastPrompt = prompt
	return m.Response, m.Err
}

func (m *MockClient) DescribeImage(ctx context.Context, imageDataURL, prompt string) (string, error) {
	m.LastImage = imageDataURL
	m.LastPrompt = prompt
	return m.Response, m.Err
}
