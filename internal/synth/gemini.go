package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiazzi/clara/internal/audio"
	"github.com/ppiazzi/clara/internal/reliability"
)

// Gemini TTS returns bare PCM16LE mono at this rate.
const geminiPCMSampleRate = 24000

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiProvider renders speech with the Gemini TTS API. It serves both
// the single-voice and the dual-speaker dialog modes.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gemini-2.5-flash-preview-tts"
	}
	return &GeminiProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *GeminiProvider) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	var speech map[string]any
	switch req.Mode {
	case ModeVoice:
		speech = map[string]any{
			"voiceConfig": prebuiltVoice(req.Voice),
		}
	case ModeDialog:
		configs := make([]map[string]any, 0, len(req.Speakers))
		for _, sp := range req.Speakers {
			configs = append(configs, map[string]any{
				"speaker":     sp.Name,
				"voiceConfig": prebuiltVoice(sp.Voice),
			})
		}
		speech = map[string]any{
			"multiSpeakerVoiceConfig": map[string]any{
				"speakerVoiceConfigs": configs,
			},
		}
	default:
		return Result{}, &InvalidParamsError{Reason: fmt.Sprintf("mode %q is not a cloud mode", req.Mode)}
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": req.Text}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig":       speech,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	data, err := p.post(ctx, payload)
	if err != nil {
		return Result{}, err
	}

	pcm, err := extractInlineAudio(data)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Audio:       audio.WrapPCM16LE(pcm, geminiPCMSampleRate),
		ContentType: audio.ContentTypeWAV,
	}, nil
}

func (p *GeminiProvider) post(ctx context.Context, payload []byte) ([]byte, error) {
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1beta/models/" + p.cfg.Model + ":generateContent"

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

		res, err := p.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(res.Body, 64<<20))
		res.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrProviderUnreachable, readErr)
			continue
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return data, nil
		}
		lastErr = fmt.Errorf("%w: status %d: %s", ErrProviderUnreachable, res.StatusCode, truncate(data, 512))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func prebuiltVoice(name string) map[string]any {
	return map[string]any{
		"prebuiltVoiceConfig": map[string]any{
			"voiceName": name,
		},
	}
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func extractInlineAudio(data []byte) ([]byte, error) {
	var res geminiResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(res.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	parts := res.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, fmt.Errorf("no parts in response content")
	}
	encoded := parts[0].InlineData.Data
	if encoded == "" {
		return nil, fmt.Errorf("no inline audio data in response")
	}
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode inline audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	return pcm, nil
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)) + " bytes)"
}
