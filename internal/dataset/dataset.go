// Package dataset is the in-memory tabular form shared by file ingestion,
// database connectors and the analysis workspace.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int"
	TypeFloat     ColumnType = "float"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is a rows x named columns table. Cells are nil, string, int64,
// float64, bool or time.Time, consistent with the column type.
type Dataset struct {
	Name    string   `json:"name"`
	Source  string   `json:"source,omitempty"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// New builds a Dataset from raw header names and rows. Headers are normalised,
// short rows are padded with nil and column types are inferred.
func New(name string, header []string, rows [][]any) *Dataset {
	names := NormalizeHeaders(header)
	width := len(names)
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i := len(names); i < width; i++ {
		names = append(names, fmt.Sprintf("column_%d", i+1))
	}

	norm := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, width)
		copy(row, r)
		norm[i] = row
	}

	d := &Dataset{Name: name, Columns: make([]Column, width), Rows: norm}
	for i, n := range names {
		d.Columns[i] = Column{Name: n, Type: d.coerceColumn(i)}
	}
	return d
}

// FromStrings is New for text sources: every cell is parsed with ParseCell.
func FromStrings(name string, header []string, records [][]string) *Dataset {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, s := range rec {
			row[j] = ParseCell(s)
		}
		rows[i] = row
	}
	return New(name, header, rows)
}

func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Head returns a copy holding at most n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 || n > len(d.Rows) {
		n = len(d.Rows)
	}
	rows := make([][]any, n)
	copy(rows, d.Rows[:n])
	return &Dataset{Name: d.Name, Source: d.Source, Columns: d.Columns, Rows: rows}
}

// TableName is the identifier the dataset is registered under in SQL.
func (d *Dataset) TableName() string {
	return ToSnakeCase(d.Name)
}

// Summary is a one-line description used in logs and prompts.
func (d *Dataset) Summary() string {
	parts := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		parts[i] = fmt.Sprintf("%s %s", c.Name, c.Type)
	}
	return fmt.Sprintf("%s (%d rows): %s", d.TableName(), d.NumRows(), strings.Join(parts, ", "))
}

// NormalizeHeaders trims names, fills blanks with column_N and de-duplicates
// with _2, _3 suffixes.
func NormalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	// Keys are lower-cased: SQL engines compare column names without case.
	taken := make(map[string]bool, len(header))
	next := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		name := h
		for taken[strings.ToLower(name)] {
			key := strings.ToLower(h)
			if next[key] < 2 {
				next[key] = 2
			}
			name = fmt.Sprintf("%s_%d", h, next[key])
			next[key]++
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

// ParseCell converts text into the narrowest matching value.
func ParseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// coerceColumn infers the type of column i and rewrites its cells to match.
func (d *Dataset) coerceColumn(i int) ColumnType {
	var ints, floats, bools, times, strs, seen int
	for _, row := range d.Rows {
		switch row[i].(type) {
		case nil:
			continue
		case int64, int, int32:
			ints++
		case float64, float32:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			strs++
		}
		seen++
	}

	var typ ColumnType
	switch {
	case seen == 0 || strs > 0:
		typ = TypeString
	case ints == seen:
		typ = TypeInt
	case ints+floats == seen:
		typ = TypeFloat
	case bools == seen:
		typ = TypeBool
	case times == seen:
		typ = TypeTimestamp
	default:
		typ = TypeString
	}

	for _, row := range d.Rows {
		row[i] = convert(row[i], typ)
	}
	return typ
}

func convert(v any, typ ColumnType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case TypeFloat:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case float32:
			return float64(n)
		}
	case TypeString:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		case time.Time:
			return s.Format(time.RFC3339)
		default:
			return fmt.Sprint(s)
		}
	}
	return v
}

// ToSnakeCase turns an arbitrary label into a lower-case identifier.
func ToSnakeCase(s string) string {
	var b strings.Builder
	prevUnderscore := true
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if !prevUnderscore && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "dataset"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "t_" + out
	}
	return out
}
