package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/mehanizm/airtable"

	"github.com/deltax-data-professor/server/internal/dataset"
)

type airtableConnector struct {
	desc    Descriptor
	cfg     Config
	baseURL string
	table   *airtable.Table
}

func newAirtable(desc Descriptor, cfg Config) *airtableConnector {
	return &airtableConnector{desc: desc, cfg: cfg}
}

func (c *airtableConnector) Connect(ctx context.Context) error {
	if c.table != nil {
		return nil
	}
	client := airtable.NewClient(deref(c.desc.APIKey))
	if c.baseURL != "" {
		if err := client.SetBaseURL(c.baseURL); err != nil {
			return err
		}
	}
	table := client.GetTable(deref(c.desc.BaseID), c.desc.Table)

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := table.GetRecords().PageSize(1).Do(); err != nil {
		return fmt.Errorf("failed to access airtable table %s: %w", c.desc.Table, err)
	}
	c.table = table
	return nil
}

func (c *airtableConnector) Execute(ctx context.Context) (*dataset.Dataset, error) {
	if c.table == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	formula, err := airtableFormula(c.desc.Where)
	if err != nil {
		return nil, err
	}

	var (
		header []string
		seen   = map[string]int{}
		recs   []map[string]any
		offset string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := c.table.GetRecords().WithOffset(offset)
		if formula != "" {
			req = req.WithFilterFormula(formula)
		}
		page, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to read airtable records: %w", err)
		}
		for _, r := range page.Records {
			keys := make([]string, 0, len(r.Fields))
			for k := range r.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, ok := seen[k]; !ok {
					seen[k] = len(header)
					header = append(header, k)
				}
			}
			recs = append(recs, r.Fields)
			if c.cfg.MaxRows > 0 && len(recs) >= c.cfg.MaxRows {
				break
			}
		}
		offset = page.Offset
		if offset == "" || (c.cfg.MaxRows > 0 && len(recs) >= c.cfg.MaxRows) {
			break
		}
	}

	rows := make([][]any, len(recs))
	for i, fields := range recs {
		row := make([]any, len(header))
		for k, v := range fields {
			row[seen[k]] = airtableValue(v)
		}
		rows[i] = row
	}
	ds := dataset.New(c.desc.Table, header, rows)
	ds.Source = "Airtable:" + deref(c.desc.BaseID)
	return ds, nil
}

func (c *airtableConnector) Close() error {
	c.table = nil
	return nil
}

// airtableValue flattens linked records, attachments and lookups to JSON text.
func airtableValue(v any) any {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return v
}

// airtableFormula translates where conditions to a filterByFormula expression.
func airtableFormula(where []Condition) (string, error) {
	if len(where) == 0 {
		return "", nil
	}
	terms := make([]string, 0, len(where))
	for _, c := range where {
		if err := validateCondition(c); err != nil {
			return "", err
		}
		field := "{" + strings.ReplaceAll(c.Column, "}", "") + "}"
		op := strings.ToUpper(strings.TrimSpace(c.Op))
		switch op {
		case "IN":
			vs := c.Value.([]any)
			alts := make([]string, len(vs))
			for i, v := range vs {
				alts[i] = field + " = " + formulaLiteral(v)
			}
			terms = append(terms, "OR("+strings.Join(alts, ", ")+")")
		case "LIKE":
			return "", fmt.Errorf("where: LIKE is not supported for Airtable")
		default:
			if op == "<>" {
				op = "!="
			}
			if !slices.Contains([]string{"=", "!=", ">", ">=", "<", "<="}, op) {
				return "", fmt.Errorf("where: operator %q is not supported for Airtable", c.Op)
			}
			terms = append(terms, field+" "+op+" "+formulaLiteral(c.Value))
		}
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return "AND(" + strings.Join(terms, ", ") + ")", nil
}

func formulaLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "BLANK()"
	case bool:
		if x {
			return "TRUE()"
		}
		return "FALSE()"
	case float64, int, int64:
		return fmt.Sprint(x)
	}
	return "'" + formulaEscaper.Replace(fmt.Sprint(v)) + "'"
}

var formulaEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
