// Package workspace runs generated SQL over the session datasets inside an
// isolated in-memory DuckDB database.
package workspace

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/deltax-data-professor/server/internal/dataset"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// Workspace is a private DuckDB database holding one table per dataset.
type Workspace struct {
	db     *sql.DB
	tables map[string]*dataset.Dataset
}

// Open creates an empty in-memory workspace.
func Open(ctx context.Context) (*Workspace, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// A single connection keeps the in-memory catalog visible to every query.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if err := sandbox(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Workspace{db: db, tables: map[string]*dataset.Dataset{}}, nil
}

// sandboxSettings cut the database off from the filesystem, the network and
// extension loading. lock_configuration must come last.
var sandboxSettings = []string{
	"SET enable_external_access = false",
	"SET autoinstall_known_extensions = false",
	"SET autoload_known_extensions = false",
	"SET lock_configuration = true",
}

// sandbox applies sandboxSettings. Tables are loaded through the appender,
// which needs none of what is switched off.
func sandbox(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sandboxSettings {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sandbox duckdb (%s): %w", stmt, err)
		}
	}
	return nil
}

func (w *Workspace) Close() error {
	return w.db.Close()
}

// Tables returns the registered table names.
func (w *Workspace) Tables() []string {
	out := make([]string, 0, len(w.tables))
	for name := range w.tables {
		out = append(out, name)
	}
	return out
}

// Load creates a table named after ds and bulk-inserts its rows.
func (w *Workspace) Load(ctx context.Context, ds *dataset.Dataset) (string, error) {
	table := uniqueName(ds.TableName(), w.tables)

	cols := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), sqlType(c.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("create table %s: %w", table, err)
	}

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", table)
		if err != nil {
			return fmt.Errorf("create appender for %s: %w", table, err)
		}
		defer func() { _ = appender.Close() }()

		vals := make([]driver.Value, len(ds.Columns))
		for i, row := range ds.Rows {
			for j := range vals {
				vals[j] = nil
				if j < len(row) {
					vals[j] = row[j]
				}
			}
			if err := appender.AppendRow(vals...); err != nil {
				return fmt.Errorf("append row %d to %s: %w", i, table, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return "", err
	}

	w.tables[table] = ds
	logx.Debug().Str("table", table).Int("rows", ds.NumRows()).Msg("dataset loaded into workspace")
	return table, nil
}

// Query runs a read-only statement and returns at most maxRows rows.
func (w *Workspace) Query(ctx context.Context, query string, maxRows int) (*dataset.Dataset, error) {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return dataset.New("result", cols, out), nil
}

// checkReadOnly rejects anything but a single SELECT/WITH statement.
func checkReadOnly(query string) error {
	if query == "" {
		return fmt.Errorf("empty query")
	}
	if strings.Contains(query, ";") {
		return fmt.Errorf("only a single statement is allowed")
	}
	first := strings.ToUpper(strings.Fields(query)[0])
	switch first {
	case "SELECT", "WITH", "FROM", "VALUES":
		return nil
	}
	return fmt.Errorf("only SELECT queries are allowed, got %s", first)
}

func sqlType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeInt:
		return "BIGINT"
	case dataset.TypeFloat:
		return "DOUBLE"
	case dataset.TypeBool:
		return "BOOLEAN"
	case dataset.TypeTimestamp:
		return "TIMESTAMP"
	case dataset.TypeString:
	}
	return "VARCHAR"
}

// normalize maps DuckDB scan values onto dataset cell types.
func normalize(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case *duckdb.Decimal:
		if x == nil {
			return nil
		}
		return x.Float64()
	case duckdb.Decimal:
		return x.Float64()
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case []byte:
		return string(x)
	case time.Time:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func uniqueName(base string, taken map[string]*dataset.Dataset) string {
	name := base
	for i := 2; ; i++ {
		if _, ok := taken[name]; !ok {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}
