package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ppiazzi/clara/internal/reliability"
)

const companionSystemPrompt = "You are a friendly, engaging chatbot that loves casual conversation. " +
	"Keep responses conversational and natural, typically 2-4 sentences. " +
	"Ask follow-up questions to keep the conversation flowing, and remember " +
	"what was said earlier in this conversation."

// OpenAIAdapter generates replies with the OpenAI chat completion API.
// OpenAI holds no server-side sessions, so this adapter keeps a bounded
// per-session message window locally.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	window int

	mu       sync.Mutex
	sessions map[string][]openai.ChatCompletionMessage
}

func NewOpenAIAdapter(apiKey, baseURL, model string, historyWindow int) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &OpenAIAdapter{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		window:   historyWindow,
		sessions: make(map[string][]openai.ChatCompletionMessage),
	}
}

func (a *OpenAIAdapter) Reply(ctx context.Context, req ReplyRequest) (ReplyResponse, error) {
	history := a.historyFor(req.SessionID)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: companionSystemPrompt,
	})
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	res, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return ReplyResponse{}, classifyOpenAIError(err)
	}
	if len(res.Choices) == 0 {
		return ReplyResponse{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return ReplyResponse{}, fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}

	a.remember(req.SessionID, req.Message, text)
	return ReplyResponse{Text: text}, nil
}

func (a *OpenAIAdapter) Starter(_ context.Context) (string, error) {
	return RandomStarter(), nil
}

func (a *OpenAIAdapter) ClearSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

func (a *OpenAIAdapter) historyFor(sessionID string) []openai.ChatCompletionMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := a.sessions[sessionID]
	out := make([]openai.ChatCompletionMessage, len(history))
	copy(out, history)
	return out
}

func (a *OpenAIAdapter) remember(sessionID, userText, assistantText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := append(a.sessions[sessionID],
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: assistantText},
	)
	// Window counts turns; each turn stores a user and an assistant message.
	if max := a.window * 2; len(history) > max {
		history = history[len(history)-max:]
	}
	a.sessions[sessionID] = history
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) || apiErr.HTTPStatusCode >= 400 {
			return &BackendError{Status: apiErr.HTTPStatusCode, Detail: apiErr.Message}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}
