package connector

import (
	"fmt"
	"strings"

	errx "github.com/deltax-data-professor/server/internal/core/error"
)

// Dialect is a supported database engine family.
type Dialect int

const (
	MySQL Dialect = iota + 1
	PostgreSQL
	SQLite
	Snowflake
	Databricks
	Airtable
	BigQuery
)

// Dialects lists every dialect in display order.
var Dialects = []Dialect{MySQL, PostgreSQL, SQLite, Snowflake, Databricks, Airtable, BigQuery}

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "MySQL"
	case PostgreSQL:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	case Snowflake:
		return "Snowflake"
	case Databricks:
		return "Databricks"
	case Airtable:
		return "Airtable"
	case BigQuery:
		return "BigQuery"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Dialect) UnmarshalText(b []byte) error {
	parsed, err := ParseDialect(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDialect resolves a display name, case-insensitively.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return MySQL, nil
	case "postgresql", "postgres":
		return PostgreSQL, nil
	case "sqlite":
		return SQLite, nil
	case "snowflake":
		return Snowflake, nil
	case "databricks":
		return Databricks, nil
	case "airtable":
		return Airtable, nil
	case "bigquery":
		return BigQuery, nil
	}
	return 0, errx.Config(fmt.Errorf("%w: %q", errx.ErrUnknownDialect, name))
}
