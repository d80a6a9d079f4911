package connector

import (
	"fmt"
	"slices"
	"strings"
)

var allowedOps = []string{"=", "!=", "<>", ">", ">=", "<", "<=", "LIKE", "IN"}

func validateCondition(c Condition) error {
	if strings.TrimSpace(c.Column) == "" {
		return fmt.Errorf("where: column is required")
	}
	op := strings.ToUpper(strings.TrimSpace(c.Op))
	if !slices.Contains(allowedOps, op) {
		return fmt.Errorf("where: operator %q is not supported", c.Op)
	}
	if op == "IN" {
		if vs, ok := c.Value.([]any); !ok || len(vs) == 0 {
			return fmt.Errorf("where: IN needs a non-empty list for %q", c.Column)
		}
	}
	return nil
}

// sqlDialect holds the syntax differences between SQL engines.
type sqlDialect struct {
	quoteChar   byte
	placeholder func(n int) string
}

var (
	backtickDialect = sqlDialect{quoteChar: '`', placeholder: func(int) string { return "?" }}
	ansiDialect     = sqlDialect{quoteChar: '"', placeholder: func(int) string { return "?" }}
	postgresDialect = sqlDialect{quoteChar: '"', placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	bigQueryDialect = sqlDialect{quoteChar: '`', placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) }}
)

// quoteIdent quotes every dot-separated part of an identifier.
func (d sqlDialect) quoteIdent(name string) string {
	q := string(d.quoteChar)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// buildSelect assembles SELECT * FROM table [WHERE ...] [LIMIT n] with bound arguments.
func (d sqlDialect) buildSelect(table string, where []Condition, limit int) (string, []any, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.quoteIdent(table))

	for i, c := range where {
		if err := validateCondition(c); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		op := strings.ToUpper(strings.TrimSpace(c.Op))
		b.WriteString(d.quoteIdent(c.Column))
		b.WriteString(" ")
		b.WriteString(op)
		b.WriteString(" ")
		if op == "IN" {
			vs := c.Value.([]any)
			marks := make([]string, len(vs))
			for j, v := range vs {
				args = append(args, v)
				marks[j] = d.placeholder(len(args))
			}
			b.WriteString("(" + strings.Join(marks, ", ") + ")")
			continue
		}
		args = append(args, c.Value)
		b.WriteString(d.placeholder(len(args)))
	}

	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String(), args, nil
}
