package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/dataset"
)

type DescribeTableInput struct {
	Table string `json:"table"`
}

type DescribeTableOutput struct {
	Table    string           `json:"table"`
	Source   string           `json:"source,omitempty"`
	RowCount int              `json:"row_count"`
	Columns  []dataset.Column `json:"columns"`
}

func createDescribeTableTool(tables []model.TableRef) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolDescribeTable,
			Desc: "Describe a loaded table: its column names, column types and total row count. Use it before writing SQL when you are unsure of a column name or type.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"table": {
					Type:     "string",
					Desc:     "Exact table name as listed in the system prompt.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *DescribeTableInput) (*DescribeTableOutput, error) {
			if in.Table == "" {
				return nil, fmt.Errorf("table is required")
			}
			t, err := lookup(tables, in.Table)
			if err != nil {
				return nil, err
			}
			return &DescribeTableOutput{
				Table:    t.Name,
				Source:   t.Dataset.Source,
				RowCount: t.Dataset.NumRows(),
				Columns:  t.Dataset.Columns,
			}, nil
		},
	)
}
