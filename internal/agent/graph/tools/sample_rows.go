package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/model"
)

type SampleRowsInput struct {
	Table string `json:"table"`
	Limit int    `json:"limit,omitempty"`
}

type SampleRowsOutput struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func createSampleRowsTool(tables []model.TableRef) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSampleRows,
			Desc: "Return the first rows of a loaded table so you can see example values and formats.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"table": {
					Type:     "string",
					Desc:     "Exact table name as listed in the system prompt.",
					Required: true,
				},
				"limit": {
					Type: "number",
					Desc: fmt.Sprintf("Number of rows to return (default: 5, max: %d)", MaxSampleRows),
				},
			}),
		},
		func(ctx context.Context, in *SampleRowsInput) (*SampleRowsOutput, error) {
			if in.Table == "" {
				return nil, fmt.Errorf("table is required")
			}
			t, err := lookup(tables, in.Table)
			if err != nil {
				return nil, err
			}
			limit := in.Limit
			if limit <= 0 {
				limit = 5
			}
			if limit > MaxSampleRows {
				limit = MaxSampleRows
			}
			head := t.Dataset.Head(limit)
			return &SampleRowsOutput{Table: t.Name, Columns: head.ColumnNames(), Rows: head.Rows}, nil
		},
	)
}
