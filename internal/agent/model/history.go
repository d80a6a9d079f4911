package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// HistoryRepository persists the questions and answer summaries of a session.
type HistoryRepository interface {
	// AddMessage appends a message to the session history.
	AddMessage(ctx context.Context, sessionID string, message *schema.Message) error

	// LoadHistory returns the full session history, oldest first.
	LoadHistory(ctx context.Context, sessionID string) (*History, error)

	// ClearHistory removes the session history.
	ClearHistory(ctx context.Context, sessionID string) error

	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// History is loaded session history.
type History struct {
	SessionID string
	Messages  []*schema.Message
}

// Questions returns the user questions in order.
func (h *History) Questions() []string {
	if h == nil {
		return nil
	}
	var out []string
	for _, m := range h.Messages {
		if m != nil && m.Role == schema.User {
			out = append(out, m.Content)
		}
	}
	return out
}
