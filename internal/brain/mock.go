package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockAdapter is a deterministic local backend used when no reply
// provider is configured, and in tests.
type MockAdapter struct {
	mu      sync.Mutex
	replies map[string]int
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{replies: make(map[string]int)}
}

func (a *MockAdapter) Reply(_ context.Context, req ReplyRequest) (ReplyResponse, error) {
	a.mu.Lock()
	a.replies[req.SessionID]++
	n := a.replies[req.SessionID]
	a.mu.Unlock()

	text := strings.TrimSpace(req.Message)
	return ReplyResponse{Text: fmt.Sprintf("(turn %d) You said: %s", n, text)}, nil
}

func (a *MockAdapter) Starter(_ context.Context) (string, error) {
	return RandomStarter(), nil
}

func (a *MockAdapter) ClearSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.replies, sessionID)
	return nil
}
