package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrMockExhausted is returned when a MockProvider has no responses left.
var ErrMockExhausted = errors.New("mock provider: no responses left")

// MockResponse is a canned reply. Err takes precedence over Candidates.
type MockResponse struct {
	Candidates []string
	Usage      Usage
	Err        error
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.responses) == 0 {
		return nil, ErrMockExhausted
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.Err != nil {
		return nil, resp.Err
	}

	return &Response{Candidates: resp.Candidates, Model: "mock", Usage: resp.Usage}, nil
}

// Model returns "mock".
func (m *MockProvider) Model() string {
	return "mock"
}

// Calls returns a copy of the recorded requests.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
