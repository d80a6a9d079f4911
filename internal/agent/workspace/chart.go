package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/dataset"
)

// RenderChart draws ds as a PNG at path, overwriting any previous chart.
func RenderChart(ds *dataset.Dataset, spec model.ChartSpec, path string) error {
	if ds == nil || ds.NumRows() == 0 {
		return fmt.Errorf("nothing to plot")
	}
	xi, yi, err := chartColumns(ds, spec)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = ds.Columns[xi].Name
	p.Y.Label.Text = ds.Columns[yi].Name

	xNumeric := isNumeric(ds.Columns[xi].Type)
	labels := make([]string, ds.NumRows())
	xys := make(plotter.XYs, ds.NumRows())
	values := make(plotter.Values, ds.NumRows())
	for i, row := range ds.Rows {
		labels[i] = fmt.Sprint(row[xi])
		y := toFloat(row[yi])
		values[i] = y
		xys[i].Y = y
		if xNumeric {
			xys[i].X = toFloat(row[xi])
		} else {
			xys[i].X = float64(i)
		}
	}

	kind := spec.Kind
	if kind == "" {
		kind = model.ChartBar
	}
	switch kind {
	case model.ChartBar:
		bars, err := plotter.NewBarChart(values, vg.Points(20))
		if err != nil {
			return fmt.Errorf("bar chart: %w", err)
		}
		p.Add(bars)
		p.NominalX(labels...)
	case model.ChartLine:
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("line chart: %w", err)
		}
		p.Add(line)
		if !xNumeric {
			p.NominalX(labels...)
		}
	case model.ChartScatter:
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter chart: %w", err)
		}
		p.Add(sc)
		if !xNumeric {
			p.NominalX(labels...)
		}
	default:
		return fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chart dir: %w", err)
	}
	// Render next to the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chart-*.png")
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	if err := p.Save(8*vg.Inch, 5*vg.Inch, tmpName); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save chart: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

// chartColumns resolves the x and y columns, defaulting to the first column
// and the first numeric column after it.
func chartColumns(ds *dataset.Dataset, spec model.ChartSpec) (int, int, error) {
	names := ds.ColumnNames()
	xi, yi := 0, -1
	if spec.X != "" {
		if xi = slices.Index(names, spec.X); xi < 0 {
			return 0, 0, fmt.Errorf("chart column %q not in result", spec.X)
		}
	}
	if spec.Y != "" {
		if yi = slices.Index(names, spec.Y); yi < 0 {
			return 0, 0, fmt.Errorf("chart column %q not in result", spec.Y)
		}
	} else {
		for i, c := range ds.Columns {
			if i != xi && isNumeric(c.Type) {
				yi = i
				break
			}
		}
	}
	if yi < 0 {
		return 0, 0, fmt.Errorf("result has no numeric column to plot")
	}
	if !isNumeric(ds.Columns[yi].Type) {
		return 0, 0, fmt.Errorf("chart column %q is not numeric", names[yi])
	}
	return xi, yi, nil
}

func isNumeric(t dataset.ColumnType) bool {
	return t == dataset.TypeInt || t == dataset.TypeFloat
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
