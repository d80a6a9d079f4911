package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
)

type ExecOptions struct {
	MaxRows   int
	ChartPath string
}

// ChartPath is the chart file of one session: ChartDir/<session>/ChartFile.
func ChartPath(cfg model.AgentConfig, sessionID string) string {
	return filepath.Join(cfg.ChartDir, chartDirName(sessionID), cfg.ChartFile)
}

// chartDirName keeps a session id usable as a single path element.
func chartDirName(sessionID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sessionID)
	if strings.Trim(name, "_") == "" {
		return "default"
	}
	return name
}

// Execute runs the answer's SQL, if any, and types the outcome.
func (w *Workspace) Execute(ctx context.Context, ans model.Answer, opts ExecOptions) (*model.QueryResult, error) {
	res := &model.QueryResult{GeneratedCode: ans.SQL, Explanation: ans.Explanation}

	if strings.TrimSpace(ans.SQL) == "" {
		text := strings.TrimSpace(ans.Text)
		if text == "" && ans.Type == model.ResultString {
			text = strings.TrimSpace(ans.Explanation)
		}
		if text == "" {
			return nil, errx.NoResult(nil)
		}
		res.Type = model.ResultString
		res.Text = text
		return res, nil
	}

	ds, err := w.Query(ctx, ans.SQL, opts.MaxRows)
	if err != nil {
		return nil, errx.NoResult(fmt.Errorf("%w: %w", errx.ErrNoResult, err))
	}

	switch ans.Type {
	case model.ResultPlot:
		spec := model.ChartSpec{}
		if ans.Chart != nil {
			spec = *ans.Chart
		}
		if err := RenderChart(ds, spec, opts.ChartPath); err != nil {
			return nil, errx.NoResult(fmt.Errorf("%w: %w", errx.ErrNoResult, err))
		}
		res.Type = model.ResultPlot
		res.ChartPath = opts.ChartPath
		res.Table = ds
		return res, nil
	case model.ResultString:
		if s, ok := scalar(ds); ok {
			res.Type = model.ResultString
			res.Text = fmt.Sprint(s)
			return res, nil
		}
	case model.ResultNumber, model.ResultDataFrame:
	}

	if v, ok := scalar(ds); ok && isNumeric(ds.Columns[0].Type) {
		res.Type = model.ResultNumber
		res.Number = toFloat(v)
		return res, nil
	}
	res.Type = model.ResultDataFrame
	res.Table = ds
	return res, nil
}

// scalar returns the single non-null cell of a 1x1 result.
func scalar(ds *dataset.Dataset) (any, bool) {
	if ds == nil || len(ds.Columns) != 1 || ds.NumRows() != 1 || ds.Rows[0][0] == nil {
		return nil, false
	}
	return ds.Rows[0][0], true
}
