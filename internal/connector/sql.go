package connector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deltax-data-professor/server/internal/dataset"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// sqlConnector is the database/sql implementation shared by the SQL dialects.
// Only the driver setup and the syntax differ per dialect.
type sqlConnector struct {
	desc   Descriptor
	cfg    Config
	syntax sqlDialect
	open   func() (*sql.DB, error)
	db     *sql.DB
}

func (c *sqlConnector) Connect(ctx context.Context) error {
	if c.db != nil {
		return nil
	}
	logx.Debug().Str("dialect", c.desc.Dialect.String()).Str("database", c.desc.Database).Msg("connecting to database")

	db, err := c.open()
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", c.desc.Dialect, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping %s: %w", c.desc.Dialect, err)
	}

	c.db = db
	return nil
}

func (c *sqlConnector) Execute(ctx context.Context) (*dataset.Dataset, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	query, args, err := c.syntax.buildSelect(c.desc.Table, c.desc.Where, c.cfg.MaxRows)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout())
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.desc.Table, err)
	}
	defer rows.Close()

	ds, err := scanRows(c.desc.Table, rows)
	if err != nil {
		return nil, err
	}
	ds.Source = fmt.Sprintf("%s:%s", c.desc.Dialect, c.desc.Database)
	logx.Debug().Str("dialect", c.desc.Dialect.String()).Str("table", c.desc.Table).Int("rows", ds.NumRows()).Msg("table loaded")
	return ds, nil
}

func (c *sqlConnector) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func scanRows(name string, rows *sql.Rows) (*dataset.Dataset, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return dataset.New(name, cols, out), nil
}

// normalizeValue maps driver values onto the dataset cell types.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return dataset.ParseCell(string(x))
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
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
	}
	return v
}
