package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/graph/tools"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/dataset"
)

//go:embed template/analysis_prompt.txt
var analysisSystemPrompt string

// TableView is one table as shown to the model.
type TableView struct {
	Name     string
	Source   string
	RowCount int
	Columns  []dataset.Column
	Sample   string
}

// AnalysisPromptInput carries everything the system prompt renders.
type AnalysisPromptInput struct {
	Tables     []model.TableRef
	History    []string
	SampleRows int
	MaxRows    int
}

// RenderAnalysisMessages renders the system prompt and the user question via
// the eino prompt component so prompt callbacks fire.
func RenderAnalysisMessages(ctx context.Context, in AnalysisPromptInput, query string) ([]*schema.Message, error) {
	if len(in.Tables) == 0 {
		return nil, fmt.Errorf("analysis prompt: no tables")
	}

	views := make([]TableView, len(in.Tables))
	for i, t := range in.Tables {
		views[i] = TableView{
			Name:     t.Name,
			Source:   t.Dataset.Source,
			RowCount: t.Dataset.NumRows(),
			Columns:  t.Dataset.Columns,
			Sample:   formatSample(t.Dataset.Head(in.SampleRows)),
		}
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(analysisSystemPrompt),
		schema.UserMessage("{{.Query}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Tables":       views,
		"History":      in.History,
		"DescribeTool": tools.ToolDescribeTable,
		"SampleTool":   tools.ToolSampleRows,
		"MaxRows":      in.MaxRows,
		"Query":        query,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis prompt render: %w", err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return nil, fmt.Errorf("analysis prompt render: unexpected result")
	}
	return msgs, nil
}

// formatSample renders rows as a pipe-separated block with a header line.
func formatSample(ds *dataset.Dataset) string {
	var b strings.Builder
	b.WriteString(strings.Join(ds.ColumnNames(), " | "))
	for _, row := range ds.Rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}
