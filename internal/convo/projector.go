package convo

import (
	"github.com/ppiazzi/clara/internal/protocol"
	"github.com/ppiazzi/clara/internal/session"
)

// Project derives the presentation state from the transcript and the
// two branch flags. It is a pure function: identical inputs always
// yield an identical event, so re-rendering is idempotent.
func Project(sessionID string, turns []session.Turn, composing, synthesizing bool) protocol.StateEvent {
	messages := make([]protocol.RenderMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, protocol.RenderMessage{
			Role:    string(t.Role),
			Content: t.Content,
			AtMs:    t.At.UnixMilli(),
		})
	}
	return protocol.StateEvent{
		Type:         protocol.TypeStateEvent,
		SessionID:    sessionID,
		Composing:    composing,
		Synthesizing: synthesizing,
		Messages:     messages,
	}
}
