package agent

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
)

// Render writes res for a terminal. Every result type has its own branch.
func Render(w io.Writer, res *model.QueryResult) error {
	if res == nil {
		_, err := fmt.Fprintln(w, errx.NoResultMessage)
		return err
	}

	switch res.Type {
	case model.ResultString:
		_, _ = fmt.Fprintln(w, res.Text)
	case model.ResultNumber:
		_, _ = fmt.Fprintln(w, FormatNumber(res.Number))
	case model.ResultDataFrame:
		renderTable(w, res.Table)
	case model.ResultPlot:
		_, _ = fmt.Fprintf(w, "Chart saved to %s\n", res.ChartPath)
	default:
		_, err := fmt.Fprintln(w, errx.NoResultMessage)
		return err
	}

	if res.GeneratedCode != "" {
		_, _ = fmt.Fprintf(w, "\nGenerated SQL:\n%s\n", res.GeneratedCode)
	}
	if res.Explanation != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", res.Explanation)
	}
	return nil
}

// FormatNumber prints integral values without a fraction.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func renderTable(w io.Writer, ds *dataset.Dataset) {
	if ds == nil || ds.NumRows() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)

	for _, r := range ds.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", ds.NumRows())
}

func formatValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strings.ReplaceAll(vv, "\n", " ")
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case time.Time:
		return vv.Format(time.RFC3339)
	default:
		return fmt.Sprint(vv)
	}
}
