package synth

import (
	"context"
	"sync"
)

// MockProvider is a deterministic provider for tests and keyless dev.
// It renders the text bytes themselves, with a non-audio content type so
// callers that hardcode formats fail loudly.
type MockProvider struct {
	mu    sync.Mutex
	calls []Request
	err   error
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockProvider) Synthesize(_ context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, req)
	err := p.err
	p.mu.Unlock()

	if err != nil {
		return Result{}, err
	}
	return Result{Audio: []byte(req.Text), ContentType: "text/plain"}, nil
}

func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.calls))
	copy(out, p.calls)
	return out
}
