// Package connector reads one table from a database into a dataset. Each
// dialect has its own Connector; descriptors are validated up front by
// BuildDescriptor.
package connector

import (
	"context"
	"fmt"
	"time"

	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
)

// Connector is the capability every dialect implements.
type Connector interface {
	// Connect opens and verifies the connection.
	Connect(ctx context.Context) error
	// Execute reads the configured table into a dataset.
	Execute(ctx context.Context) (*dataset.Dataset, error)
	Close() error
}

type Config struct {
	ConnectTimeout string `envconfig:"DB_CONNECT_TIMEOUT" default:"15s"`
	QueryTimeout   string `envconfig:"DB_QUERY_TIMEOUT" default:"60s"`
	MaxRows        int    `envconfig:"DB_MAX_ROWS" default:"100000"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{ConnectTimeout: "15s", QueryTimeout: "60s", MaxRows: 100_000}
}

func (c Config) connectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, 15*time.Second)
}

func (c Config) queryTimeout() time.Duration {
	return parseDuration(c.QueryTimeout, time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// New returns the connector for the descriptor's dialect.
func New(desc Descriptor, cfg Config) (Connector, error) {
	switch desc.Dialect {
	case MySQL:
		return newMySQL(desc, cfg), nil
	case PostgreSQL:
		return newPostgres(desc, cfg), nil
	case SQLite:
		return newSQLite(desc, cfg), nil
	case Snowflake:
		return newSnowflake(desc, cfg), nil
	case Databricks:
		return newDatabricks(desc, cfg), nil
	case BigQuery:
		return newBigQuery(desc, cfg), nil
	case Airtable:
		return newAirtable(desc, cfg), nil
	}
	return nil, errx.Config(fmt.Errorf("%w: %s", errx.ErrUnknownDialect, desc.Dialect))
}

// Load connects, reads the table and closes. Connection failures are wrapped
// with errx.Connection so callers can halt just this action.
func Load(ctx context.Context, desc Descriptor, cfg Config) (*dataset.Dataset, error) {
	conn, err := New(desc, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Connect(ctx); err != nil {
		return nil, errx.Connection(err)
	}
	ds, err := conn.Execute(ctx)
	if err != nil {
		return nil, errx.Connection(err)
	}
	return ds, nil
}
