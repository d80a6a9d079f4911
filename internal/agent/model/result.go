package model

import (
	"fmt"
	"strings"

	"github.com/deltax-data-professor/server/internal/dataset"
)

// ResultType is the closed set of answer shapes.
type ResultType string

const (
	ResultString    ResultType = "string"
	ResultDataFrame ResultType = "dataframe"
	ResultPlot      ResultType = "plot"
	ResultNumber    ResultType = "number"
)

// ParseResultType accepts the names a model is likely to emit.
func ParseResultType(s string) (ResultType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return ResultString, nil
	case "dataframe", "table":
		return ResultDataFrame, nil
	case "plot", "chart":
		return ResultPlot, nil
	case "number", "numeric":
		return ResultNumber, nil
	}
	return "", fmt.Errorf("unknown result type %q", s)
}

// ChartKind is the plot style.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartScatter ChartKind = "scatter"
)

// ChartSpec tells the executor how to plot a query result.
type ChartSpec struct {
	Kind  ChartKind `json:"kind"`
	X     string    `json:"x"`
	Y     string    `json:"y"`
	Title string    `json:"title,omitempty"`
}

// Answer is the structured reply parsed from the model.
type Answer struct {
	Type        ResultType `json:"type"`
	SQL         string     `json:"sql,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Chart       *ChartSpec `json:"chart,omitempty"`
	// Text is the literal answer when no SQL is needed.
	Text string `json:"text,omitempty"`
}

// QueryResult is the typed outcome of one question. Exactly one of Text,
// Table, Number or ChartPath is meaningful, selected by Type.
type QueryResult struct {
	Type          ResultType       `json:"type"`
	Text          string           `json:"text,omitempty"`
	Table         *dataset.Dataset `json:"table,omitempty"`
	Number        float64          `json:"number,omitempty"`
	ChartPath     string           `json:"chart_path,omitempty"`
	GeneratedCode string           `json:"generated_code,omitempty"`
	Explanation   string           `json:"explanation,omitempty"`
	CostUSD       float64          `json:"cost_usd,omitempty"`
}
