package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/model"
)

const (
	ToolDescribeTable = "describe_table"
	ToolSampleRows    = "sample_rows"

	// MaxSampleRows caps sample_rows regardless of what the model asks for.
	MaxSampleRows = 50
)

// GetAnalysisTools returns the tools the model may call to inspect tables.
func GetAnalysisTools(tables []model.TableRef) []tool.BaseTool {
	return []tool.BaseTool{
		createDescribeTableTool(tables),
		createSampleRowsTool(tables),
	}
}

// GetToolInfos collects the ToolInfo of each tool for binding to a chat model.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func lookup(tables []model.TableRef, name string) (model.TableRef, error) {
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return model.TableRef{}, fmt.Errorf("table %q not found, available tables: %v", name, names)
}
