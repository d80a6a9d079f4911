package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// BindTools returns a copy of chat with the analysis tools bound.
func BindTools(ctx context.Context, chat model.ToolCallingChatModel, tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	bound, err := chat.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to chat model")
	return bound, nil
}
