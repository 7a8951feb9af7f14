package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects exactly one synthesis provider per request. Modes are
// chosen by the caller, never auto-negotiated.
type Mode string

const (
	// ModeVoice is single-voice cloud synthesis.
	ModeVoice Mode = "voice"
	// ModeDialog is dual-speaker cloud synthesis for two-party dialogue.
	ModeDialog Mode = "dialog"
	// ModeLocal is offline synthesis via a local engine.
	ModeLocal Mode = "local"
)

// Speaker names one party of a dialog rendering and the voice it speaks with.
type Speaker struct {
	Name  string `json:"name"`
	Voice string `json:"voice"`
}

// Request describes one synthesis call.
type Request struct {
	Text string
	Mode Mode

	// Voice applies to ModeVoice.
	Voice string

	// Speakers applies to ModeDialog.
	Speakers [2]Speaker

	// Rate (words/min) and Volume (0..1) apply to ModeLocal.
	Rate   int
	Volume float64
}

// Result is a one-shot audio payload. The content type is authoritative;
// providers emit different encodings.
type Result struct {
	Audio       []byte
	ContentType string
}

// Provider renders text to audio.
type Provider interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

var (
	ErrProviderUnreachable = errors.New("synthesis provider unreachable")
	ErrEmptyInput          = errors.New("synthesis text is empty")
)

// InvalidParamsError reports a request rejected before any network call.
type InvalidParamsError struct {
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return "invalid synthesis parameters: " + e.Reason
}

// Validate rejects malformed requests up front so no provider is invoked
// with bad input.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyInput
	}
	switch r.Mode {
	case ModeVoice:
		if strings.TrimSpace(r.Voice) == "" {
			return &InvalidParamsError{Reason: "voice name is required"}
		}
	case ModeDialog:
		for i, sp := range r.Speakers {
			if strings.TrimSpace(sp.Name) == "" {
				return &InvalidParamsError{Reason: fmt.Sprintf("speaker %d name is required", i+1)}
			}
			if strings.TrimSpace(sp.Voice) == "" {
				return &InvalidParamsError{Reason: fmt.Sprintf("speaker %d voice is required", i+1)}
			}
		}
	case ModeLocal:
		if r.Rate <= 0 {
			return &InvalidParamsError{Reason: "rate must be positive"}
		}
		if r.Volume < 0 || r.Volume > 1 {
			return &InvalidParamsError{Reason: "volume must be in [0,1]"}
		}
	default:
		return &InvalidParamsError{Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	return nil
}

// Client dispatches validated requests to the per-mode providers.
type Client struct {
	cloud Provider
	local Provider
}

func NewClient(cloud, local Provider) *Client {
	return &Client{cloud: cloud, local: local}
}

func (c *Client) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	var p Provider
	switch req.Mode {
	case ModeVoice, ModeDialog:
		p = c.cloud
	case ModeLocal:
		p = c.local
	}
	if p == nil {
		return Result{}, fmt.Errorf("%w: no provider for mode %q", ErrProviderUnreachable, req.Mode)
	}
	return p.Synthesize(ctx, req)
}
