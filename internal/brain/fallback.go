package brain

import (
	"context"
	"errors"
	"fmt"
)

// FallbackAdapter attempts a primary adapter first and falls back on error.
type FallbackAdapter struct {
	primary  Adapter
	fallback Adapter
}

func NewFallbackAdapter(primary, fallback Adapter) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, fallback: fallback}
}

func (a *FallbackAdapter) Reply(ctx context.Context, req ReplyRequest) (ReplyResponse, error) {
	res, err := a.primary.Reply(ctx, req)
	if err == nil {
		return res, nil
	}
	// A canceled caller is not a backend failure; don't mask it.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReplyResponse{}, err
	}
	fallbackRes, fallbackErr := a.fallback.Reply(ctx, req)
	if fallbackErr != nil {
		return ReplyResponse{}, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackRes, nil
}

func (a *FallbackAdapter) Starter(ctx context.Context) (string, error) {
	starter, err := a.primary.Starter(ctx)
	if err == nil {
		return starter, nil
	}
	return a.fallback.Starter(ctx)
}

func (a *FallbackAdapter) ClearSession(ctx context.Context, sessionID string) error {
	err := a.primary.ClearSession(ctx, sessionID)
	if fbErr := a.fallback.ClearSession(ctx, sessionID); err == nil {
		err = fbErr
	}
	return err
}
