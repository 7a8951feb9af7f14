package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiazzi/clara/internal/reliability"
)

// HTTPAdapter forwards turns to a chat-completions style HTTP backend
// that persists its own per-session history.
type HTTPAdapter struct {
	replyURL   string
	starterURL string
	clearURL   string
	client     *http.Client
}

type replyEnvelope struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Starter  string `json:"starter,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewHTTPAdapter(url string) *HTTPAdapter {
	base := strings.TrimRight(strings.TrimSpace(url), "/")
	return &HTTPAdapter{
		replyURL:   base,
		starterURL: base + "/starter",
		clearURL:   base + "/clear",
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *HTTPAdapter) Reply(ctx context.Context, req ReplyRequest) (ReplyResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"message":    req.Message,
		"session_id": req.SessionID,
	})
	if err != nil {
		return ReplyResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	env, err := a.postEnvelope(ctx, a.replyURL, payload)
	if err != nil {
		return ReplyResponse{}, err
	}
	if env.Status != "success" {
		return ReplyResponse{}, &BackendError{Detail: env.Error}
	}
	if strings.TrimSpace(env.Response) == "" {
		return ReplyResponse{}, fmt.Errorf("%w: empty response field", ErrMalformedResponse)
	}
	return ReplyResponse{Text: env.Response}, nil
}

func (a *HTTPAdapter) Starter(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.starterURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer res.Body.Close()

	env, err := decodeEnvelope(res)
	if err != nil {
		return "", err
	}
	if env.Status != "success" || strings.TrimSpace(env.Starter) == "" {
		return "", &BackendError{Status: res.StatusCode, Detail: env.Error}
	}
	return env.Starter, nil
}

func (a *HTTPAdapter) ClearSession(ctx context.Context, sessionID string) error {
	payload, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = a.postEnvelope(ctx, a.clearURL, payload)
	return err
}

// postEnvelope sends a JSON body and decodes the standard status
// envelope, retrying once on retryable statuses.
func (a *HTTPAdapter) postEnvelope(ctx context.Context, url string, payload []byte) (replyEnvelope, error) {
	const maxAttempts = 2
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return replyEnvelope{}, fmt.Errorf("%w: %v", ErrNetworkUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return replyEnvelope{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		res, err := a.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
			continue
		}

		env, decodeErr := decodeEnvelope(res)
		res.Body.Close()

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			if decodeErr != nil {
				return replyEnvelope{}, decodeErr
			}
			return env, nil
		}

		detail := env.Error
		if detail == "" && decodeErr != nil {
			detail = http.StatusText(res.StatusCode)
		}
		lastErr = &BackendError{Status: res.StatusCode, Detail: detail}
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			// The backend signals turn-level errors via the envelope too;
			// surface those without retrying.
			if decodeErr == nil && env.Status == "error" {
				return env, nil
			}
			return replyEnvelope{}, lastErr
		}
	}

	return replyEnvelope{}, lastErr
}

func decodeEnvelope(res *http.Response) (replyEnvelope, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return replyEnvelope{}, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	var env replyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return replyEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return env, nil
}
