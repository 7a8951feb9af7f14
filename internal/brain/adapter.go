package brain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ReplyRequest is the normalized request sent to the reply backend. The
// backend keeps its own history keyed by session id; the full transcript
// is never resent.
type ReplyRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ReplyResponse is the assistant utterance for one turn.
type ReplyResponse struct {
	Text string `json:"text"`
}

// Adapter bridges the conversation runtime with a reply-generation backend.
type Adapter interface {
	Reply(ctx context.Context, req ReplyRequest) (ReplyResponse, error)
	Starter(ctx context.Context) (string, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// Apology is the fixed user-visible fallback appended when the reply
// backend fails. The conversation must never stall silently.
const Apology = "Sorry, I encountered an error. Please try again."

// Config controls adapter construction.
type Config struct {
	Mode          string
	HTTPURL       string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	HistoryWindow int
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoAdapter(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg.HTTPURL), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OpenAI API key is required for openai mode")
		}
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HistoryWindow), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}

func newAutoAdapter(cfg Config) Adapter {
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		primary := NewHTTPAdapter(cfg.HTTPURL)
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewFallbackAdapter(primary, NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HistoryWindow))
		}
		return primary
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HistoryWindow)
	}
	return NewMockAdapter()
}

var starters = []string{
	"Hey there! What's the most interesting thing that happened to you today? 😊",
	"Hi! I'm in the mood for some good conversation. What's on your mind?",
	"Hello! I was just thinking about random things. What's your favorite way to spend a lazy Sunday?",
	"Hey! I love meeting new people through chat. What's something you're passionate about?",
	"Hi there! I'm curious - if you could have dinner with anyone (living or dead), who would it be?",
	"Hello! I'm feeling chatty today. What's the last thing that made you laugh really hard?",
	"Hey! I was just wondering - what's the most random skill you wish you had?",
	"Hi there! I love learning about people. What's something unique about you that most people don't know?",
	"Hello! I'm in a great mood today. What's something that always makes you smile?",
	"Hey! I'm curious about your thoughts. What's the most underrated thing in life, in your opinion?",
}

// RandomStarter picks a canned conversation opener. Used directly by
// adapters without a remote starter endpoint, and as the fallback when
// the remote one fails.
func RandomStarter() string {
	return starters[rand.Intn(len(starters))]
}
