package brain

import (
	"context"
	"errors"
	"testing"
)

type scriptedAdapter struct {
	reply   ReplyResponse
	err     error
	calls   int
	cleared []string
}

func (a *scriptedAdapter) Reply(_ context.Context, _ ReplyRequest) (ReplyResponse, error) {
	a.calls++
	return a.reply, a.err
}

func (a *scriptedAdapter) Starter(_ context.Context) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.reply.Text, nil
}

func (a *scriptedAdapter) ClearSession(_ context.Context, sessionID string) error {
	a.cleared = append(a.cleared, sessionID)
	return a.err
}

func TestNewAdapterModes(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "mock", cfg: Config{Mode: "mock"}},
		{name: "http", cfg: Config{Mode: "http", HTTPURL: "http://localhost:9/chat"}},
		{name: "http missing url", cfg: Config{Mode: "http"}, wantErr: true},
		{name: "openai", cfg: Config{Mode: "openai", OpenAIAPIKey: "sk-test"}},
		{name: "openai missing key", cfg: Config{Mode: "openai"}, wantErr: true},
		{name: "unknown", cfg: Config{Mode: "telepathy"}, wantErr: true},
		{name: "auto defaults to mock", cfg: Config{Mode: "auto"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAdapter(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewAdapter() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAdapter() error = %v", err)
			}
			if a == nil {
				t.Fatalf("NewAdapter() returned nil adapter")
			}
		})
	}
}

func TestFallbackAdapterUsesSecondaryOnError(t *testing.T) {
	primary := &scriptedAdapter{err: ErrNetworkUnavailable}
	secondary := &scriptedAdapter{reply: ReplyResponse{Text: "from fallback"}}
	a := NewFallbackAdapter(primary, secondary)

	res, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if res.Text != "from fallback" {
		t.Fatalf("Reply() text = %q", res.Text)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls = (%d, %d), want (1, 1)", primary.calls, secondary.calls)
	}
}

func TestFallbackAdapterPreservesCancellation(t *testing.T) {
	primary := &scriptedAdapter{err: context.Canceled}
	secondary := &scriptedAdapter{reply: ReplyResponse{Text: "should not be used"}}
	a := NewFallbackAdapter(primary, secondary)

	_, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Reply() error = %v, want context.Canceled", err)
	}
	if secondary.calls != 0 {
		t.Fatalf("fallback should not run for canceled contexts")
	}
}

func TestFallbackAdapterCombinedError(t *testing.T) {
	primary := &scriptedAdapter{err: ErrNetworkUnavailable}
	secondary := &scriptedAdapter{err: &BackendError{Detail: "down"}}
	a := NewFallbackAdapter(primary, secondary)

	_, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("Reply() error = %v, want wrapped ErrNetworkUnavailable", err)
	}
}

func TestMockAdapterEchoesAndClears(t *testing.T) {
	a := NewMockAdapter()
	res, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "hello"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if res.Text == "" {
		t.Fatalf("mock reply should not be empty")
	}
	if err := a.ClearSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
}

func TestRandomStarterNonEmpty(t *testing.T) {
	for i := 0; i < 20; i++ {
		if RandomStarter() == "" {
			t.Fatalf("RandomStarter() returned empty string")
		}
	}
}
